package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luma/riakpb/client"
	"github.com/luma/riakpb/internal/meta"
	"github.com/luma/riakpb/quorum"
)

const vclockHeader = "X-Riak-Vclock"

// Query parameters each object route accepts as options.
var (
	fetchParams  = []quorum.Name{quorum.R, quorum.PR, quorum.BasicQuorum, quorum.NotFoundOk, quorum.Head}
	storeParams  = []quorum.Name{quorum.W, quorum.DW, quorum.PW, quorum.ReturnBody}
	deleteParams = []quorum.Name{quorum.RW, quorum.R, quorum.W, quorum.PR, quorum.PW, quorum.DW}
)

// requestOptions reads the named query parameters, and the vclock header,
// into normalised options.
func requestOptions(c *gin.Context, names []quorum.Name) (quorum.Options, error) {
	opts := quorum.Options{}

	for _, name := range names {
		if value, ok := c.GetQuery(string(name)); ok {
			opts[name] = value
		}
	}

	if vclock := c.GetHeader(vclockHeader); vclock != "" {
		opts[quorum.VClock] = vclock
	}

	return quorum.Normalize(opts)
}

func (g *Gateway) ping(c *gin.Context) {
	err := g.with(c, func(ctx context.Context, node Node) error {
		return node.Ping(ctx)
	})
	if err != nil {
		g.fail(c, err)
		return
	}

	c.String(http.StatusOK, "pong")
}

func (g *Gateway) version(c *gin.Context) {
	c.JSON(http.StatusOK, meta.GetInfo())
}

func (g *Gateway) info(c *gin.Context) {
	var info client.ServerInfo

	err := g.with(c, func(ctx context.Context, node Node) (err error) {
		info, err = node.ServerInfo(ctx)
		return err
	})
	if err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

func (g *Gateway) listBuckets(c *gin.Context) {
	var buckets []string

	err := g.with(c, func(ctx context.Context, node Node) (err error) {
		buckets, err = node.ListBuckets(ctx)
		return err
	})
	if err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

// listKeys lists a bucket's keys, or with ?index= the keys matching either
// ?key= or the range ?min= to ?max= on that index.
func (g *Gateway) listKeys(c *gin.Context) {
	bucket := c.Param("bucket")

	var keys []string

	err := g.with(c, func(ctx context.Context, node Node) (err error) {
		index, ok := c.GetQuery("index")
		if !ok {
			keys, err = node.ListKeys(ctx, bucket, nil)
			return err
		}

		q := client.IndexMatch(c.Query("key"))
		if _, ranged := c.GetQuery("min"); ranged {
			q = client.IndexRange(c.Query("min"), c.Query("max"))
		}

		keys, err = node.IndexQuery(ctx, bucket, index, q)
		return err
	})
	if err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// writeObject answers with the object's value, or with every sibling as JSON
// and 300 Multiple Choices when it is in conflict.
func writeObject(c *gin.Context, status int, obj *client.Object) {
	if len(obj.VClock) > 0 {
		c.Header(vclockHeader, base64.StdEncoding.EncodeToString(obj.VClock))
	}

	if obj.Conflict() {
		c.JSON(http.StatusMultipleChoices, gin.H{"siblings": obj.Siblings})
		return
	}

	content := obj.Content()
	for name, value := range content.Meta {
		c.Header("X-Riak-Meta-"+name, value)
	}

	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if content.Charset != "" {
		contentType = fmt.Sprintf("%s; charset=%s", contentType, content.Charset)
	}

	c.Data(status, contentType, content.Value)
}

func (g *Gateway) fetch(c *gin.Context) {
	bucket, key := c.Param("bucket"), c.Param("key")

	opts, err := requestOptions(c, fetchParams)
	if err != nil {
		g.fail(c, err)
		return
	}

	var obj *client.Object

	err = g.with(c, func(ctx context.Context, node Node) (err error) {
		obj, err = node.Fetch(ctx, bucket, key, opts)
		return err
	})
	if err != nil {
		g.fail(c, err)
		return
	}

	writeObject(c, http.StatusOK, obj)
}

// store writes the request body. The X-Riak-Vclock header names the version
// being replaced, and ?prevent_stale=true refuses to replace any other.
func (g *Gateway) store(c *gin.Context) {
	opts, err := requestOptions(c, storeParams)
	if err != nil {
		g.fail(c, err)
		return
	}

	value, err := c.GetRawData()
	if err != nil {
		g.fail(c, err)
		return
	}

	obj := client.NewObject(c.Param("bucket"), c.Param("key"))
	obj.VClock = opts.Bytes(quorum.VClock)
	obj.PreventStaleWrites = c.Query("prevent_stale") == "true"
	obj.SetValue(value, c.ContentType())

	err = g.with(c, func(ctx context.Context, node Node) error {
		return node.Store(ctx, obj, opts)
	})
	if err != nil {
		g.fail(c, err)
		return
	}

	if returnBody := opts.Bool(quorum.ReturnBody); returnBody != nil && *returnBody {
		writeObject(c, http.StatusOK, obj)
		return
	}

	c.Status(http.StatusNoContent)
}

func (g *Gateway) delete(c *gin.Context) {
	bucket, key := c.Param("bucket"), c.Param("key")

	opts, err := requestOptions(c, deleteParams)
	if err != nil {
		g.fail(c, err)
		return
	}

	err = g.with(c, func(ctx context.Context, node Node) error {
		return node.Delete(ctx, bucket, key, opts)
	})
	if err != nil {
		g.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (g *Gateway) bucketProps(c *gin.Context) {
	bucket := c.Param("bucket")

	var props client.BucketProps

	err := g.with(c, func(ctx context.Context, node Node) (err error) {
		props, err = node.BucketProps(ctx, bucket)
		return err
	})
	if err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"props": props})
}

func (g *Gateway) setBucketProps(c *gin.Context) {
	bucket := c.Param("bucket")

	var body struct {
		Props client.BucketProps `json:"props"`
	}

	if err := c.ShouldBindJSON(&body); err != nil {
		g.fail(c, fmt.Errorf("%w: %v", errBadProps, err))
		return
	}

	err := g.with(c, func(ctx context.Context, node Node) error {
		return node.SetBucketProps(ctx, bucket, body.Props)
	})
	if err != nil {
		g.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
