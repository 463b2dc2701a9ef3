package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ray-d-song/bookimg/pkg/ui"
)

func newShowCmd() *cobra.Command {
	var (
		chapter int
		cover   bool
		cols    int
		rows    int
	)

	cmd := &cobra.Command{
		Use:   "show BOOK [REF]",
		Short: "Print one image of a book to the terminal",
		Long: `Print one image of a book to the terminal.

REF is resolved the way a chapter would resolve it: relative to the chapter
given with --chapter, or to the package directory otherwise. Use --cover to
show the cover image instead.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(1, 2)(cmd, args); err != nil {
				return err
			}
			if len(args) == 1 && !cover {
				return fmt.Errorf("%s needs a REF or --cover", cmd.Name())
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

			var ref string
			if cover {
				href, ok := b.epub.CoverImage()
				if !ok {
					return fmt.Errorf("%s declares no cover image", args[0])
				}
				ref, chapter = href, -1
			} else {
				ref = args[1]
			}
			if chapter >= len(b.chapters) {
				return fmt.Errorf("chapter %d out of range, the book has %d", chapter, len(b.chapters))
			}

			img, err := a.loader.LoadImage(cmd.Context(), b.request(ref, chapter))
			if err != nil {
				return err
			}

			out, err := ui.RenderANSI(img, cols, rows)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&chapter, "chapter", -1, "0-based spine index the reference appears in")
	cmd.Flags().BoolVar(&cover, "cover", false, "show the cover image")
	cmd.Flags().IntVar(&cols, "cols", 0, "output width in cells (default terminal width)")
	cmd.Flags().IntVar(&rows, "rows", 0, "output height in cells (default terminal height)")
	return cmd
}
