package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/agentuity/go-memocache/cache"
	"github.com/agentuity/go-memocache/tui"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// execute runs root and then releases everything the invocation opened.
// Cleanup also runs when the command fails, so spans of failed operations
// are still flushed to the collector.
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil {
		if err == nil {
			return cerr
		}
		return errors.Join(err, cerr)
	}
	return err
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:   "memocache",
		Short: "Instrumented cache and memoizing fetcher",
		Long: `memocache stores values under generated keys, memoizes URL fetches with a
TTL and replays the recorded call history of each operation.

The in-memory store lives only for a single invocation; use --store redis to
keep data between runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "path to a YAML config file")
	flags.String("store", "", "backing store: memory or redis")
	flags.String("redis-url", "", "redis connection url")
	flags.String("prefix", "", "key prefix inside the backing store")
	flags.String("history", "", "history mode: paired or input-first")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error or none")
	flags.String("log-format", "", "log format: console or json")
	flags.String("docstore", "", "path of the bbolt document store")

	root.AddCommand(
		newStoreCommand(a),
		newGetCommand(a),
		newFetchCommand(a),
		newCountCommand(a),
		newHitsCommand(a),
		newReplayCommand(a),
		newFlushCommand(a),
		newSchoolsCommand(a),
	)
	return root, a
}

func parseValue(kind, raw string) (cache.Value, error) {
	switch kind {
	case "text", "":
		return cache.Text(raw), nil
	case "bytes":
		return cache.Bytes([]byte(raw)), nil
	case "int":
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cache.Value{}, errors.Wrapf(err, "invalid int %q", raw)
		}
		return cache.Int(i), nil
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return cache.Value{}, errors.Wrapf(err, "invalid float %q", raw)
		}
		return cache.Float(f), nil
	default:
		return cache.Value{}, errors.Newf("unknown kind %q", kind)
	}
}

func newStoreCommand(a *app) *cobra.Command {
	var kind string
	var flush bool
	cmd := &cobra.Command{
		Use:   "store <value>",
		Short: "Store a value under a new random key and print the key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			val, err := parseValue(kind, args[0])
			if err != nil {
				return err
			}
			c, err := a.newCache(cmd.Context(), flush)
			if err != nil {
				return err
			}
			key, err := c.Store(cmd.Context(), val)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "text", "value kind: text, bytes, int or float")
	cmd.Flags().BoolVar(&flush, "flush", false, "flush the store before storing")
	return cmd
}

func newGetCommand(a *app) *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under key, optionally coerced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.newCache(ctx, false)
			if err != nil {
				return err
			}
			key := args[0]
			var out any
			var found bool
			switch as {
			case "":
				out, found, err = c.Retrieve(ctx, key)
			case "text":
				out, found, err = c.RetrieveText(ctx, key)
			case "bytes":
				var b []byte
				b, found, err = c.RetrieveBytes(ctx, key)
				out = string(b)
			case "int":
				out, found, err = c.RetrieveInt(ctx, key)
			case "float":
				out, found, err = c.RetrieveFloat(ctx, key)
			default:
				return errors.Newf("unknown coercion %q", as)
			}
			if err != nil {
				return err
			}
			if !found {
				return errors.Newf("key %s not found", key)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "coerce to text, bytes, int or float")
	return cmd
}

func newFetchCommand(a *app) *cobra.Command {
	var times int
	var quiet bool
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch a URL through the memoizer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.newMemoizer(ctx, nil)
			if err != nil {
				return err
			}
			url := args[0]
			var body string
			for i := 0; i < times; i++ {
				err := tui.ShowSpinner(ctx, "Fetching "+url, func() error {
					var err error
					body, err = m.Fetch(ctx, url)
					return err
				})
				if err != nil {
					return err
				}
			}
			hits, err := m.Hits(ctx, url)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !quiet {
				fmt.Fprintln(out, body)
			}
			fmt.Fprintln(out, tui.Muted(fmt.Sprintf("%s requested %d times", url, hits)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&times, "times", "n", 1, "number of times to fetch")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the body")
	return cmd
}

func newCountCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count <operation>",
		Short: "Print how many times an operation was called",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			n, err := cache.NewRecorder(store).CountOf(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newHitsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hits <url>",
		Short: "Print how many times a URL was requested",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.newMemoizer(cmd.Context(), nil)
			if err != nil {
				return err
			}
			n, err := m.Hits(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newReplayCommand(a *app) *cobra.Command {
	var table bool
	cmd := &cobra.Command{
		Use:   "replay <operation>",
		Short: "Print the recorded calls of an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			trace, err := cache.Replay(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !table {
				fmt.Fprintln(out, trace.String())
				return nil
			}
			fmt.Fprintln(out, tui.Title(fmt.Sprintf("%s was called %d times", trace.Name, trace.Count)))
			rows := make([][]string, 0, len(trace.Calls))
			for _, call := range trace.Calls {
				rows = append(rows, []string{
					strconv.Itoa(call.Index),
					tui.MaxWidth(call.Input, 60),
					tui.MaxWidth(call.Output, 60),
				})
			}
			fmt.Fprintln(out, tui.Table([]string{"#", "input", "output"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&table, "table", "t", false, "render the calls as a table")
	return cmd
}

func newFlushCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Remove all values, counters and histories from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Flush(cmd.Context()); err != nil {
				return err
			}
			a.log.Info("store flushed")
			return nil
		},
	}
}
