package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/riakpb/gateway"
)

var (
	// The host to listen for http requests on
	gatewayHost string

	// The port to listen for http requests on
	gatewayPort int
)

func init() {
	flags := gatewayCmd.Flags()

	flags.StringVar(&gatewayHost, "listen-host", "0.0.0.0", "The host to listen for HTTP requests on")
	flags.IntVar(&gatewayPort, "listen-port", 8098, "The port to listen for HTTP requests on")

	rootCmd.AddCommand(gatewayCmd)
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve the node over HTTP",
	Long: `Serve the node over HTTP

Every request is bridged to one protocol buffers connection to the node, one
request at a time.

Usage
	riakpb gateway --listen-port 8098

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		if cmd.Flags().Changed("listen-host") {
			conf.GatewayHost = gatewayHost
		}
		if cmd.Flags().Changed("listen-port") {
			conf.GatewayPort = gatewayPort
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		// Surface a node we cannot reach before accepting requests for it
		if err := conn.Connect(ctx); err != nil {
			return err
		}

		s := &http.Server{
			Handler: gateway.New(gateway.Options{
				Node:      conn,
				DebugHTTP: conf.DebugHTTP,
				Log:       log.Named("gateway"),
			}),
		}

		addr := net.JoinHostPort(conf.GatewayHost, strconv.Itoa(conf.GatewayPort))

		l, err := reuseport.Listen("tcp", addr)
		if err != nil {
			return err
		}

		// Serving in a goroutine so that it won't block the graceful
		// shutdown handling below
		go func() {
			if err := s.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		log.Info("Listening",
			zap.String("addr", addr),
			zap.String("node", net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))),
			zap.Any("capabilities", conn.Capabilities()))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The server has 5 seconds to finish the requests it is handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if serr := s.Shutdown(shutdownCtx); serr != nil {
			log.Error("Http server forced to shutdown", zap.Error(serr))
			err = multierr.Append(err, serr)
		}

		log.Info("Exiting")
		return err
	},
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
