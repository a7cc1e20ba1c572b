package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luma/riakpb/client"
	"github.com/luma/riakpb/cmd/gen"
	"github.com/luma/riakpb/internal/env"
	"github.com/luma/riakpb/internal/output"
)

var (
	// Global flags, each overrides its environment variable when set
	host           string
	port           int
	clientID       string
	connectTimeout time.Duration
	requestTimeout time.Duration
	rateLimit      float64
	serverVersion  string
	outputFormat   string
	debug          bool
	trace          bool

	// Shared state set during PersistentPreRun
	conf      *env.Config
	log       *zap.Logger
	conn      *client.Conn
	formatter output.Formatter
)

var rootCmd = &cobra.Command{
	Use:   "riakpb",
	Short: "Talk to a Riak node over protocol buffers",
	Long: `riakpb runs single operations against a Riak node over its protocol
buffers interface, or bridges the node to plain HTTP with the gateway
command.

Connection settings are read from RIAK_* environment variables, and
.env.local when present, and can be overridden with flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		if conf, err = env.LoadConfig(cmd.Context()); err != nil {
			return fmt.Errorf("Failed to load config: %w", err)
		}

		applyFlags(cmd)

		if log, err = env.MakeLogger(debug); err != nil {
			return err
		}

		conn = client.New(client.Options{
			Host:           conf.Host,
			Port:           conf.Port,
			ConnectTimeout: conf.ConnectTimeout,
			RequestTimeout: conf.RequestTimeout,
			ClientID:       parseClientID(conf.ClientID),
			ServerVersion:  conf.ServerVersion,
			RateLimit:      rate.Limit(conf.RateLimit),
			Trace:          trace,
			Log:            log,
		})

		formatter = output.NewFormatter(outputFormat)

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		_ = log.Sync()
		return conn.Close()
	},
}

// applyFlags lets every flag given on the command line win over the
// environment.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	if flags.Changed("host") {
		conf.Host = host
	}
	if flags.Changed("port") {
		conf.Port = port
	}
	if flags.Changed("client-id") {
		conf.ClientID = clientID
	}
	if flags.Changed("connect-timeout") {
		conf.ConnectTimeout = connectTimeout
	}
	if flags.Changed("request-timeout") {
		conf.RequestTimeout = requestTimeout
	}
	if flags.Changed("rate-limit") {
		conf.RateLimit = rateLimit
	}
	if flags.Changed("server-version") {
		conf.ServerVersion = serverVersion
	}
}

// parseClientID packs a number as the 4 bytes a node expects and takes
// anything else as raw bytes.
func parseClientID(id string) []byte {
	if id == "" {
		return nil
	}

	if n, err := strconv.ParseUint(id, 10, 32); err == nil {
		return client.ClientIDFromUint32(uint32(n))
	}

	return []byte(id)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&host, "host", "a", "127.0.0.1", "The node's host")
	flags.IntVarP(&port, "port", "p", 8087, "The node's protocol buffers port")
	flags.StringVar(&clientID, "client-id", "", "Client id to identify as, a number or raw text")
	flags.DurationVar(&connectTimeout, "connect-timeout", 5*time.Second, "How long to wait for the connection")
	flags.DurationVar(&requestTimeout, "request-timeout", 30*time.Second, "How long to wait for each operation")
	flags.Float64Var(&rateLimit, "rate-limit", 0, "Maximum operations per second, 0 for no limit")
	flags.StringVar(&serverVersion, "server-version", "", "Assume the node runs this version instead of asking it")
	flags.StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json or yaml")
	flags.BoolVar(&debug, "debug", false, "Log at debug level")
	flags.BoolVar(&trace, "trace", false, "Log every frame sent and received, needs --debug")

	rootCmd.AddCommand(gen.RootCmd)
}
