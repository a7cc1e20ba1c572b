package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/luma/riakpb/kverr"
	"github.com/luma/riakpb/quorum"
)

var (
	errBadProps = errors.New("Bucket properties must be a JSON object")
)

var kindStatus = map[kverr.Kind]int{
	kverr.NotFound:              http.StatusNotFound,
	kverr.StaleWrite:            http.StatusPreconditionFailed,
	kverr.NotModified:           http.StatusPreconditionFailed,
	kverr.PrecommitFailed:       http.StatusForbidden,
	kverr.InvalidQuorum:         http.StatusBadRequest,
	kverr.NValViolation:         http.StatusBadRequest,
	kverr.BadRequest:            http.StatusBadRequest,
	kverr.InvalidIndexQuery:     http.StatusBadRequest,
	kverr.ContentTypeMissing:    http.StatusBadRequest,
	kverr.QuorumNotMet:          http.StatusServiceUnavailable,
	kverr.QuorumFailed:          http.StatusServiceUnavailable,
	kverr.InsufficientPrimaries: http.StatusServiceUnavailable,
	kverr.InsufficientReplicas:  http.StatusServiceUnavailable,
	kverr.RequestTimedOut:       http.StatusServiceUnavailable,
	kverr.FeatureUnsupported:    http.StatusNotImplemented,
}

// StatusFor returns the HTTP status reporting err.
func StatusFor(err error) int {
	if errors.Is(err, quorum.ErrInvalidValue) || errors.Is(err, errBadProps) {
		return http.StatusBadRequest
	}

	kind, ok := kverr.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}

	if status, ok := kindStatus[kind]; ok {
		return status
	}

	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (g *Gateway) fail(c *gin.Context, err error) {
	status := StatusFor(err)

	body := errorBody{Error: err.Error()}
	if kind, ok := kverr.KindOf(err); ok {
		body.Kind = kind.String()
	}

	if status >= http.StatusInternalServerError {
		g.log.Warn("Request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}

	c.AbortWithStatusJSON(status, body)
}
