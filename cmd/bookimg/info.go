package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info BOOK",
		Short: "Show metadata and image counts of a book",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return err
			}
			return bookArg(cmd, args)
		},
		DisableFlagsInUseLine: true,
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

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			for _, row := range metadataRows(b.epub) {
				fmt.Fprintf(w, "%s:\t%s\n", row[0], row[1])
			}

			refs := 0
			for _, ch := range b.chapters {
				refs += len(ch.Images)
			}
			idx := a.loader.Index(b.key)
			fmt.Fprintf(w, "Package:\t%s\n", b.epub.RootFile)
			fmt.Fprintf(w, "Chapters:\t%d\n", len(b.chapters))
			fmt.Fprintf(w, "Entries:\t%d\n", idx.Len())
			fmt.Fprintf(w, "Images:\t%d\n", len(idx.Images()))
			fmt.Fprintf(w, "References:\t%d\n", refs)
			if href, ok := b.epub.CoverImage(); ok {
				fmt.Fprintf(w, "Cover:\t%s\n", href)
			}
			return nil
		},
	}
}
