package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luma/riakpb/client"
)

var (
	jobFile    string
	jobInputs  []string
	mapNames   []string
	reduceFuns []string
	jobTimeout int

	indexMin string
	indexMax string

	searchIndex string
	search      client.SearchOptions
)

// buildJob reads --job, or builds a job from the other flags: inputs are a
// bucket or bucket/key pairs, maps name JavaScript functions and reduces
// name Erlang module:function pairs.
func buildJob(args []string) (client.MapReduceQuery, error) {
	if jobFile != "" {
		data, err := os.ReadFile(jobFile)
		if err != nil {
			return nil, err
		}
		return client.RawJob(data), nil
	}

	var job *client.Job

	switch {
	case len(args) == 1:
		job = client.NewJob(args[0])

	case len(jobInputs) > 0:
		pairs := make([][2]string, 0, len(jobInputs))
		for _, input := range jobInputs {
			bucket, key, ok := strings.Cut(input, "/")
			if !ok {
				return nil, fmt.Errorf("Input %q is not of the form bucket/key", input)
			}
			pairs = append(pairs, [2]string{bucket, key})
		}
		job = client.NewJobOver(pairs...)

	default:
		return nil, errors.New("Either a bucket, --input or --job is required")
	}

	for _, name := range mapNames {
		job.Map(client.Phase{Name: name})
	}

	for _, fun := range reduceFuns {
		module, function, ok := strings.Cut(fun, ":")
		if !ok {
			return nil, fmt.Errorf("Reduce %q is not of the form module:function", fun)
		}
		job.Reduce(client.Phase{Module: module, Function: function})
	}

	return job.Timeout(jobTimeout), nil
}

var mapredCmd = &cobra.Command{
	Use:   "mapred [bucket]",
	Short: "Run a map-reduce job",
	Long: `Run a map-reduce job and print the results of every phase as they arrive,
one JSON result per line prefixed with its phase.

Examples
	riakpb mapred people --map Riak.mapValuesJson
	riakpb mapred --input people/ann --input people/bob --map Riak.mapValues \
		--reduce riak_kv_mapreduce:reduce_sort
	riakpb mapred --job job.json
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := buildJob(args)
		if err != nil {
			return err
		}

		_, err = conn.MapReduce(cmd.Context(), job, func(phase int, results []json.RawMessage) error {
			for _, result := range results {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", phase, result); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("Failed to run map-reduce job: %w", err)
		}

		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index <bucket> <index> [value]",
	Short: "List the keys matching a secondary index",
	Long: `List the keys matching a secondary index, either exactly a value or
between --min and --max inclusive.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var q client.IndexQuery

		switch {
		case len(args) == 3:
			q = client.IndexMatch(args[2])
		case cmd.Flags().Changed("min") || cmd.Flags().Changed("max"):
			q = client.IndexRange(indexMin, indexMax)
		default:
			return errors.New("Either a value or --min and --max are required")
		}

		keys, err := conn.IndexQuery(cmd.Context(), args[0], args[1], q)
		if err != nil {
			return fmt.Errorf("Failed to query %s on %s: %w", args[1], args[0], err)
		}

		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(keys))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search an index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := conn.Search(cmd.Context(), searchIndex, args[0], search)
		if err != nil {
			return fmt.Errorf("Failed to search: %w", err)
		}

		if outputFormat == "table" {
			fmt.Fprintf(cmd.OutOrStdout(), "Found %d, max score %g\n", result.NumFound, result.MaxScore)
			for _, doc := range result.Docs {
				fmt.Fprintln(cmd.OutOrStdout(), formatter.Format(doc))
			}
			return nil
		}

		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(result))
		return nil
	},
}

func init() {
	flags := mapredCmd.Flags()
	flags.StringVar(&jobFile, "job", "", "File holding the job's JSON")
	flags.StringArrayVar(&jobInputs, "input", nil, "A bucket/key to run over, instead of a whole bucket")
	flags.StringArrayVar(&mapNames, "map", nil, "Named JavaScript map function")
	flags.StringArrayVar(&reduceFuns, "reduce", nil, "Erlang reduce function as module:function")
	flags.IntVar(&jobTimeout, "timeout", 0, "Job timeout in milliseconds")

	flags = indexCmd.Flags()
	flags.StringVar(&indexMin, "min", "", "Lowest value to match")
	flags.StringVar(&indexMax, "max", "", "Highest value to match")

	flags = searchCmd.Flags()
	flags.StringVar(&searchIndex, "index", client.DefaultSearchIndex, "Index to search")
	flags.Uint32Var(&search.Rows, "rows", 0, "Maximum number of documents")
	flags.Uint32Var(&search.Start, "start", 0, "Number of documents to skip")
	flags.StringVar(&search.Sort, "sort", "", "Field to sort by")
	flags.StringVar(&search.Filter, "filter", "", "Filter query")
	flags.StringVar(&search.DF, "df", "", "Default field")
	flags.StringVar(&search.Op, "op", "", "Default operator, and or or")
	flags.StringSliceVar(&search.FL, "fl", nil, "Fields to return")
	flags.StringVar(&search.Presort, "presort", "", "Presort, key or score")

	rootCmd.AddCommand(mapredCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
}
