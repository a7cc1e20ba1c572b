// Package gateway exposes a node over plain HTTP by bridging every request
// to a protocol buffers connection.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/luma/riakpb/client"
	"github.com/luma/riakpb/quorum"
)

// Node is the part of *client.Conn the gateway uses.
type Node interface {
	Ping(ctx context.Context) error
	ServerInfo(ctx context.Context) (client.ServerInfo, error)
	ListBuckets(ctx context.Context) ([]string, error)
	ListKeys(ctx context.Context, bucket string, fn func(keys []string) error) ([]string, error)
	IndexQuery(ctx context.Context, bucket, index string, q client.IndexQuery) ([]string, error)
	Fetch(ctx context.Context, bucket, key string, opts quorum.Options) (*client.Object, error)
	Store(ctx context.Context, obj *client.Object, opts quorum.Options) error
	Delete(ctx context.Context, bucket, key string, opts quorum.Options) error
	BucketProps(ctx context.Context, bucket string) (client.BucketProps, error)
	SetBucketProps(ctx context.Context, bucket string, props client.BucketProps) error
}

type Options struct {
	Node Node

	// DebugHTTP leaves gin in debug mode
	DebugHTTP bool

	Log *zap.Logger
}

type Gateway struct {
	// mu serialises access to node, which runs one operation at a time
	mu   sync.Mutex
	node Node

	log *zap.Logger
}

// New returns the gateway's HTTP handler.
func New(options Options) http.Handler {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	g := &Gateway{node: options.Node, log: log}

	r := setupRouter(options.DebugHTTP, log)

	r.GET("/ping", g.ping)
	r.GET("/version", g.version)
	r.GET("/info", g.info)

	r.GET("/buckets", g.listBuckets)
	r.GET("/buckets/:bucket/keys", g.listKeys)
	r.GET("/buckets/:bucket/keys/:key", g.fetch)
	r.PUT("/buckets/:bucket/keys/:key", g.store)
	r.DELETE("/buckets/:bucket/keys/:key", g.delete)
	r.GET("/buckets/:bucket/props", g.bucketProps)
	r.PUT("/buckets/:bucket/props", g.setBucketProps)

	return r
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

// with runs fn while holding the node.
func (g *Gateway) with(c *gin.Context, fn func(ctx context.Context, node Node) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return fn(c.Request.Context(), g.node)
}
