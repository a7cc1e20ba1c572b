package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	streamKeys bool

	nVal      uint32
	allowMult bool
)

var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "List every bucket holding keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		buckets, err := conn.ListBuckets(cmd.Context())
		if err != nil {
			return fmt.Errorf("Failed to list buckets: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(buckets))
		return nil
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys <bucket>",
	Short: "List every key in a bucket",
	Long: `List every key in a bucket.

With --stream keys are printed one per line as the node sends them instead
of once the listing is complete.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var fn func([]string) error
		if streamKeys {
			fn = func(batch []string) error {
				for _, key := range batch {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), key); err != nil {
						return err
					}
				}
				return nil
			}
		}

		keys, err := conn.ListKeys(cmd.Context(), args[0], fn)
		if err != nil {
			return fmt.Errorf("Failed to list keys of %s: %w", args[0], err)
		}

		if !streamKeys {
			fmt.Fprint(cmd.OutOrStdout(), formatter.Format(keys))
		}
		return nil
	},
}

var propsCmd = &cobra.Command{
	Use:   "props",
	Short: "Read or change a bucket's properties",
}

var propsGetCmd = &cobra.Command{
	Use:   "get <bucket>",
	Short: "Show a bucket's properties",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		props, err := conn.BucketProps(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("Failed to get properties of %s: %w", args[0], err)
		}

		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(props))
		return nil
	},
}

var propsSetCmd = &cobra.Command{
	Use:   "set <bucket>",
	Short: "Change a bucket's properties",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		props, err := conn.BucketProps(ctx, args[0])
		if err != nil {
			return fmt.Errorf("Failed to get properties of %s: %w", args[0], err)
		}

		flags := cmd.Flags()
		if flags.Changed("n-val") {
			props.NVal = nVal
		}
		if flags.Changed("allow-mult") {
			props.AllowMult = allowMult
		}

		if err := conn.SetBucketProps(ctx, args[0], props); err != nil {
			return fmt.Errorf("Failed to set properties of %s: %w", args[0], err)
		}

		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(props))
		return nil
	},
}

func init() {
	keysCmd.Flags().BoolVar(&streamKeys, "stream", false, "Print keys as they arrive")

	flags := propsSetCmd.Flags()
	flags.Uint32Var(&nVal, "n-val", 3, "Number of replicas of each key")
	flags.BoolVar(&allowMult, "allow-mult", false, "Keep conflicting writes as siblings")

	propsCmd.AddCommand(propsGetCmd)
	propsCmd.AddCommand(propsSetCmd)

	rootCmd.AddCommand(bucketsCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(propsCmd)
}
