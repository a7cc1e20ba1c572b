package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Host string `env:"RIAK_HOST,default=127.0.0.1"`
	Port int    `env:"RIAK_PB_PORT,default=8087"`

	// ClientID is either a number, packed as 4 bytes, or raw text
	ClientID string `env:"RIAK_CLIENT_ID"`

	ConnectTimeout time.Duration `env:"RIAK_CONNECT_TIMEOUT,default=5s"`
	RequestTimeout time.Duration `env:"RIAK_REQUEST_TIMEOUT,default=30s"`

	// RateLimit caps operations per second, zero means unlimited
	RateLimit float64 `env:"RIAK_RATE_LIMIT"`

	// ServerVersion skips asking the node for its version
	ServerVersion string `env:"RIAK_SERVER_VERSION"`

	GatewayHost string `env:"RIAK_GATEWAY_HOST,default=0.0.0.0"`
	GatewayPort int    `env:"RIAK_GATEWAY_PORT,default=8098"`
	DebugHTTP   bool   `env:"RIAK_DEBUG_HTTP"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
