package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	config   string
	logLevel string
}

var (
	flags = &globalFlags{}

	rootCmd = &cobra.Command{
		Use:     "bookimg",
		Short:   "Browse and cache the images of EPUB books in the terminal",
		Version: version,
		Long: fmt.Sprintf(`bookimg %s (%s license)
Author: %s
Homepage: %s

Images are resolved against the archive index and kept in a memory cache
and a persistent disk cache, so reopening a book does not decode it again.`,
			version, license, author, url),
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "config file (default is ~/.config/bookimg/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn or error")

	rootCmd.AddCommand(
		newViewCmd(),
		newShowCmd(),
		newImagesCmd(),
		newInfoCmd(),
		newWarmCmd(),
		newClearCmd(),
		newStatsCmd(),
		newConfigCmd(),
	)
}

// bookArg validates that the first argument is an existing EPUB file
func bookArg(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s needs an EPUB file", cmd.Name())
	}
	if !isFile(args[0]) {
		return fmt.Errorf("file not found: %s", args[0])
	}
	return nil
}

// isFile checks if a path is a file
func isFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
