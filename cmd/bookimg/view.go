package main

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/ray-d-song/bookimg/pkg/archive"
	"github.com/ray-d-song/bookimg/pkg/epub"
	"github.com/ray-d-song/bookimg/pkg/ui"
)

func newViewCmd() *cobra.Command {
	var start int

	cmd := &cobra.Command{
		Use:   "view BOOK",
		Short: "Page through the images of a book",
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

			items := galleryItems(a, b)
			if len(items) == 0 {
				return fmt.Errorf("no images found in %s", args[0])
			}

			gallery := ui.NewGallery(a.loader, items, a.log)
			gallery.Metadata = metadataRows(b.epub)
			gallery.OnNavigate = func(chapter int) {
				if chapter < 0 {
					return
				}
				a.prefetcher.PrefetchUpcoming(b.key, b.epub.RootDir, chapter, b.chapters, a.cfg.Prefetch.Lookahead)
			}
			if start > 0 {
				gallery.Start = start - 1
			}
			return gallery.Run()
		},
	}
	cmd.Flags().IntVarP(&start, "start", "s", 0, "1-based image to start at")
	return cmd
}

// galleryItems lists the images referenced by the chapters in reading order. A
// book whose chapters reference nothing falls back to every image in the archive.
func galleryItems(a *app, b *book) []ui.Item {
	var items []ui.Item
	for i, ch := range b.chapters {
		for _, ref := range ch.Images {
			if archive.IsRemoteReference(ref) {
				continue
			}
			items = append(items, ui.Item{
				Label:   fmt.Sprintf("%s (%s)", path.Base(ref), path.Base(ch.Path)),
				Chapter: i,
				Request: b.request(ref, i),
			})
		}
	}
	if len(items) > 0 {
		return items
	}

	for _, name := range a.loader.Images(b.key) {
		req := b.request(name, -1)
		req.BaseDir = ""
		items = append(items, ui.Item{
			Label:   name,
			Chapter: -1,
			Request: req,
		})
	}
	return items
}

func metadataRows(eb *epub.Book) [][]string {
	rows := eb.GetMetadata().Rows()
	if eb.Version != "" {
		rows = append(rows, []string{"Version", eb.Version})
	}
	return rows
}
