package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ray-d-song/bookimg/pkg/archive"
)

func newImagesCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "images BOOK",
		Short: "List the image references of a book and the entries they resolve to",
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

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if all {
				key, err := archive.NewKey(args[0])
				if err != nil {
					return err
				}
				for _, name := range a.loader.Images(key) {
					fmt.Fprintln(w, name)
				}
				return nil
			}

			b, err := a.openBook(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(w, "CHAPTER\tREFERENCE\tENTRY")
			for i, ch := range b.chapters {
				for _, ref := range ch.Images {
					entry, err := a.loader.Resolve(b.request(ref, i))
					switch {
					case archive.IsRemoteReference(ref):
						entry = "(remote)"
					case err != nil:
						entry = "(unresolved)"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", ch.Path, ref, entry)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "list every image entry in the archive instead")
	return cmd
}
