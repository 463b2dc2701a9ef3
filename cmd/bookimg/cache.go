package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"

	"github.com/ray-d-song/bookimg/pkg/config"
	"github.com/ray-d-song/bookimg/pkg/utils"
)

func newWarmCmd() *cobra.Command {
	var decode bool

	cmd := &cobra.Command{
		Use:   "warm BOOK",
		Short: "Read every image of a book into the caches",
		Long: `Read every image of a book into the caches.

By default only the raw bytes are cached. With --decode every referenced image
is decoded as well, so later views are served from the decoded caches.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return err
			}
			return bookArg(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.openBook(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			started := time.Now()
			stop := context.AfterFunc(cmd.Context(), a.prefetcher.Cancel)
			defer stop()

			a.prefetcher.PrefetchAll(b.key)
			a.prefetcher.Wait()
			if decode && cmd.Context().Err() == nil {
				a.prefetcher.PrefetchUpcoming(b.key, b.epub.RootDir, -1, b.chapters, len(b.chapters))
				a.prefetcher.Wait()
			}
			if err := cmd.Context().Err(); err != nil {
				return err
			}

			stats := a.memory.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Warmed %s in %s\n", args[0], time.Since(started).Round(time.Millisecond))
			fmt.Fprintf(cmd.OutOrStdout(), "Memory: %d raw (%s), %d decoded (%s)\n",
				stats.RawEntries, utils.ByteCountIEC(stats.RawUsage),
				stats.DecodedEntries, utils.ByteCountIEC(stats.DecodedUsage))
			if a.disk != nil {
				decoded, raw := a.disk.Usage()
				fmt.Fprintf(cmd.OutOrStdout(), "Disk: %s raw, %s decoded\n",
					utils.ByteCountIEC(raw), utils.ByteCountIEC(decoded))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&decode, "decode", false, "decode every referenced image too")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "clear",
		Short:                 "Delete the persistent image cache",
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.disk == nil {
				return errors.New("disk cache is not available")
			}
			decoded, raw := a.disk.Usage()
			if err := a.disk.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s from %s\n", utils.ByteCountIEC(decoded+raw), a.disk.Directory())
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	var bookPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print cache metrics in Prometheus text format",
		Long: `Print cache metrics in Prometheus text format.

Counters only cover this process, so --book warms the given book first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if bookPath != "" {
				if !isFile(bookPath) {
					return fmt.Errorf("file not found: %s", bookPath)
				}
				b, err := a.openBook(cmd.Context(), bookPath)
				if err != nil {
					return err
				}
				a.prefetcher.PrefetchAll(b.key)
				a.prefetcher.Wait()
				a.prefetcher.PrefetchUpcoming(b.key, b.epub.RootDir, -1, b.chapters, len(b.chapters))
				a.prefetcher.Wait()
			}
			if a.disk != nil {
				a.disk.Wait()
			}

			metrics.WritePrometheus(cmd.OutOrStdout(), false)
			return nil
		},
	}
	cmd.Flags().StringVarP(&bookPath, "book", "b", "", "EPUB file to load before printing")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:                   "init",
		Short:                 "Write the default configuration",
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			file := flags.config
			if file == "" {
				var err error
				if file, err = config.DefaultFile(); err != nil {
					return err
				}
			}
			if err := config.WriteDefault(file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", file)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:                   "path",
		Short:                 "Print the default configuration file location",
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := config.DefaultFile()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), file)
			return nil
		},
	})

	return cmd
}
