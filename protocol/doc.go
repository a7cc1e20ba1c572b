package protocol

// This package implements framing and message encoding for the protocol
// buffers interface that Riak nodes expose to their clients.
//
// - `MessageCode` - A single byte naming a request or response kind.
// - `Frame` - One length prefixed message on the socket.
// - `Request` - A message sent from a client to a node.
// - `Response` - A message sent from a node back to the client.
//
// === Framing
//
//   ```
//     <length:uint32 big-endian><code:uint8><payload>
//   ```
//
// `length` covers the code byte plus the payload, so a frame with an empty
// payload has a length of 1. The header is always exactly 5 bytes.
//
// A reader first reads the 5 header bytes then exactly `length - 1` payload
// bytes. Running out of bytes part way through either read means the node
// closed the connection.
//
// === Payloads
//
// Payloads are protocol buffers messages. They are encoded and decoded with
// `protowire` directly rather than generated code, every message type in
// this package implements `Marshaler` and `Unmarshaler`.
//
// An empty payload is valid. It means the node acknowledged the request with
// the response code alone, e.g.
//
//   ```
//     > 00000001 01          PingReq
//     < 00000001 02          PingResp
//   ```
//
// Some responses are only ever empty (PingResp, DelResp), others are empty
// in special cases: an empty GetResp means the key was not found and an empty
// ListBucketsResp means there are no buckets.
//
// === Error responses
//
//   ```
//     < <length>00<ErrorResponse{errmsg, errcode}>
//   ```
//
// `errmsg` is free text produced by the node. Decode never returns an error
// response as a value, it returns the decoded `*ErrorResponse` as the error
// so callers can classify it.
//
// === Streaming responses
//
// ListKeysReq and MapRedReq are answered with any number of response frames.
// The last one has `done` set, or in the case of ListKeysResp may be empty.
//
