package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luma/riakpb/client"
	"github.com/luma/riakpb/quorum"
)

var (
	// requestOpts are passed to the operation as is, e.g. r=quorum
	requestOpts map[string]string

	putValue     string
	contentType  string
	gzipValue    bool
	preventStale bool
	vclock       string
	indexes      []string
	metadata     map[string]string
)

func options() quorum.Options {
	opts := make(quorum.Options, len(requestOpts))
	for name, value := range requestOpts {
		opts[quorum.Name(name)] = value
	}
	return opts
}

var getCmd = &cobra.Command{
	Use:   "get <bucket> <key>",
	Short: "Fetch an object",
	Long: `Fetch an object.

With the table output a single value is printed as is, while an object with
siblings, or any other output format, prints the whole object.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, err := conn.Fetch(cmd.Context(), args[0], args[1], options())
		if err != nil {
			return fmt.Errorf("Failed to fetch %s/%s: %w", args[0], args[1], err)
		}

		if outputFormat == "table" && !obj.Conflict() {
			_, err := cmd.OutOrStdout().Write(obj.Content().Value)
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(obj))
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <bucket> [key]",
	Short: "Store an object",
	Long: `Store an object.

The value is taken from --value, or read from stdin when not given. Without
a key the node generates one, which is printed.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		obj := client.NewObject(args[0], "")
		if len(args) == 2 {
			obj.Key = args[1]
		}

		data := []byte(putValue)
		if !cmd.Flags().Changed("value") {
			var err error
			if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
				return err
			}
		}

		obj.SetValue(data, contentType)
		obj.PreventStaleWrites = preventStale

		content := obj.Content()
		if gzipValue {
			content.ContentEncoding = "gzip"
		}
		content.Meta = metadata

		for _, entry := range indexes {
			name, value, ok := strings.Cut(entry, "=")
			if !ok {
				return fmt.Errorf("Index %q is not of the form name=value", entry)
			}
			content.AddIndex(name, value)
		}

		if vclock != "" {
			normalized, err := quorum.Normalize(quorum.Options{quorum.VClock: vclock})
			if err != nil {
				return fmt.Errorf("Invalid vclock: %w", err)
			}
			obj.VClock = normalized.Bytes(quorum.VClock)
		}

		if err := conn.Store(cmd.Context(), obj, options()); err != nil {
			return fmt.Errorf("Failed to store %s/%s: %w", obj.Bucket, obj.Key, err)
		}

		if len(args) == 1 {
			fmt.Fprintln(cmd.OutOrStdout(), obj.Key)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <bucket> <key>",
	Short: "Delete an object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := conn.Delete(cmd.Context(), args[0], args[1], options()); err != nil {
			return fmt.Errorf("Failed to delete %s/%s: %w", args[0], args[1], err)
		}

		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{getCmd, putCmd, deleteCmd} {
		cmd.Flags().StringToStringVarP(&requestOpts, "opt", "O", nil, "Request option, e.g. -O r=quorum -O notfound_ok=true")
	}

	flags := putCmd.Flags()
	flags.StringVar(&putValue, "value", "", "The value to store, stdin when not given")
	flags.StringVarP(&contentType, "content-type", "t", "application/octet-stream", "Content type of the value")
	flags.BoolVar(&gzipValue, "gzip", false, "Store the value gzip compressed")
	flags.BoolVar(&preventStale, "prevent-stale", false, "Refuse to replace a version other than --vclock")
	flags.StringVar(&vclock, "vclock", "", "Base64 vclock of the version being replaced")
	flags.StringArrayVar(&indexes, "index", nil, "Secondary index entry, e.g. --index email_bin=ann@example.com")
	flags.StringToStringVar(&metadata, "meta", nil, "User metadata, e.g. --meta owner=ann")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(deleteCmd)
}
