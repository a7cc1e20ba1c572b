package cmd

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luma/riakpb/capability"
	"github.com/luma/riakpb/client"
	"github.com/luma/riakpb/internal/meta"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the node is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()

		if err := conn.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("Failed to ping %s:%d: %w", conf.Host, conf.Port, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "pong from %s:%d in %s\n", conf.Host, conf.Port, time.Since(start).Round(time.Microsecond))
		return nil
	},
}

type nodeInfo struct {
	Node          string `json:"node" yaml:"node"`
	ServerVersion string `json:"server_version" yaml:"server_version"`

	Capabilities capability.Set `json:"capabilities" yaml:"capabilities"`
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the node's name, version and what it supports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := conn.ServerInfo(cmd.Context())
		if err != nil {
			return fmt.Errorf("Failed to get server info: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(nodeInfo{
			Node:          info.Node,
			ServerVersion: info.ServerVersion,
			Capabilities:  conn.Capabilities(),
		}))
		return nil
	},
}

var clientIDCmd = &cobra.Command{
	Use:   "client-id",
	Short: "Read or change the id the node attributes writes to",
}

var clientIDGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the connection's client id, hex encoded",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := conn.ClientID(cmd.Context())
		if err != nil {
			return fmt.Errorf("Failed to get client id: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(id))
		return nil
	},
}

var clientIDSetCmd = &cobra.Command{
	Use:   "set [id]",
	Short: "Change the connection's client id, a random one when none is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := client.NewClientID()
		if len(args) == 1 {
			id = parseClientID(args[0])
		}

		if err := conn.SetClientID(cmd.Context(), id); err != nil {
			return fmt.Errorf("Failed to set client id: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(id))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show how this binary was built",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(meta.GetInfo()))
		return nil
	},
}

func init() {
	clientIDCmd.AddCommand(clientIDGetCmd)
	clientIDCmd.AddCommand(clientIDSetCmd)

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(clientIDCmd)
	rootCmd.AddCommand(versionCmd)
}
