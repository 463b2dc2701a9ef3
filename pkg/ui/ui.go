// Package ui shows book images in the terminal: a tview gallery and plain ANSI
// rendering for non-interactive output.
package ui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"

	"github.com/ray-d-song/bookimg/pkg/loader"
	"github.com/ray-d-song/bookimg/pkg/utils"
)

// ColorScheme represents a color scheme
type ColorScheme int

const (
	// DefaultColorScheme is the default color scheme
	DefaultColorScheme ColorScheme = iota
	// DarkColorScheme is the dark color scheme
	DarkColorScheme
	// LightColorScheme is the light color scheme
	LightColorScheme
)

// placeholder is shown while loading and for unavailable images
var placeholder = image.NewNRGBA(image.Rect(0, 0, 1, 1))

// Loader is what the gallery needs to fetch images
type Loader interface {
	Go(ctx context.Context, req loader.Request) <-chan loader.Result
}

// Item is one image of the gallery
type Item struct {
	Label   string
	Chapter int
	Request loader.Request
}

// Gallery pages through the images of a book one at a time
type Gallery struct {
	App         *tview.Application
	Image       *tview.Image
	StatusBar   *tview.TextView
	ColorScheme ColorScheme

	// OnNavigate is called with the chapter of every item that gets shown
	OnNavigate func(chapter int)
	// Metadata is shown by the metadata screen
	Metadata [][]string
	// Start is the item Run shows first
	Start int

	loader Loader
	items  []Item
	log    *logrus.Entry
	layout *tview.Flex

	// update applies f on the UI goroutine
	update func(f func())

	mu      sync.Mutex
	current int
	gen     int
	cancel  context.CancelFunc
}

// NewGallery creates a gallery over items
func NewGallery(l Loader, items []Item, log *logrus.Entry) *Gallery {
	app := tview.NewApplication()

	img := tview.NewImage().
		SetColors(tview.TrueColor).
		SetDithering(tview.DitheringFloydSteinberg)

	statusBar := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true)

	g := &Gallery{
		App:       app,
		Image:     img,
		StatusBar: statusBar,
		loader:    l,
		items:     items,
		log:       utils.Component(log, "ui"),
		current:   -1,
	}
	g.update = func(f func()) { app.QueueUpdateDraw(f) }

	// Set up the layout
	g.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(img, 0, 1, true).
		AddItem(statusBar, 1, 0, false)
	app.SetRoot(g.layout, true)
	app.SetInputCapture(g.handleKey)

	return g
}

// Run shows the start item and blocks until the user quits
func (g *Gallery) Run() error {
	if len(g.items) == 0 {
		return errors.New("no images to show")
	}
	g.Show(g.Start)
	defer g.Close()
	return g.App.Run()
}

// Close cancels any load in flight
func (g *Gallery) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

func (g *Gallery) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRight, tcell.KeyPgDn:
		g.Next()
		return nil
	case tcell.KeyLeft, tcell.KeyPgUp:
		g.Prev()
		return nil
	case tcell.KeyEscape:
		g.App.Stop()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'n', 'l', ' ':
			g.Next()
		case 'p', 'h':
			g.Prev()
		case 'g':
			g.Show(0)
		case 'G':
			g.Show(len(g.items) - 1)
		case 'c':
			g.CycleColorScheme()
		case 'm':
			g.ShowMetadata(g.Metadata)
		case '?':
			g.ShowHelp()
		case 'q':
			g.App.Stop()
		}
		return nil
	}
	return event
}

// Current returns the index of the item being shown
func (g *Gallery) Current() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Next shows the following item
func (g *Gallery) Next() {
	g.Show(g.Current() + 1)
}

// Prev shows the preceding item
func (g *Gallery) Prev() {
	g.Show(g.Current() - 1)
}

// Show starts loading item i, clamped to the gallery, and shows a loading
// placeholder until the result arrives. A result for an item that is no longer
// current is dropped.
func (g *Gallery) Show(i int) {
	if len(g.items) == 0 {
		return
	}
	i = max(0, min(i, len(g.items)-1))

	g.mu.Lock()
	if i == g.current {
		g.mu.Unlock()
		return
	}
	if g.cancel != nil {
		g.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.current = i
	g.gen++
	gen := g.gen
	g.mu.Unlock()

	item := g.items[i]
	g.Image.SetImage(placeholder)
	g.SetStatus(fmt.Sprintf("[yellow]Loading[-] %s", g.position(i, item)))

	if g.OnNavigate != nil {
		g.OnNavigate(item.Chapter)
	}

	results := g.loader.Go(ctx, item.Request)
	go func() {
		res := <-results
		g.update(func() {
			g.applyResult(gen, i, item, res)
		})
	}()
}

func (g *Gallery) applyResult(gen, i int, item Item, res loader.Result) {
	g.mu.Lock()
	stale := gen != g.gen
	g.mu.Unlock()
	if stale || errors.Is(res.Err, context.Canceled) {
		return
	}

	if res.Err != nil {
		g.log.WithField("ref", item.Request.Ref).Debugf("Image unavailable: %v", res.Err)
		g.Image.SetImage(placeholder)
		g.SetStatus(fmt.Sprintf("[red]Unavailable[-] %s", g.position(i, item)))
		return
	}

	g.Image.SetImage(res.Image)
	g.SetStatus(fmt.Sprintf("%s  %s", g.position(i, item), dimensions(res.Image)))
}

func (g *Gallery) position(i int, item Item) string {
	return fmt.Sprintf("%d/%d %s", i+1, len(g.items), tview.Escape(item.Label))
}

func dimensions(img image.Image) string {
	b := img.Bounds()
	return fmt.Sprintf("%dx%d", b.Dx(), b.Dy())
}

// SetStatus sets the status bar text
func (g *Gallery) SetStatus(text string) {
	g.StatusBar.Clear()
	g.StatusBar.SetText(text)
}

// Status returns the status bar text without color tags
func (g *Gallery) Status() string {
	return g.StatusBar.GetText(true)
}

// SetCapture replaces the application's input capture and returns a function
// restoring the previous one
func (g *Gallery) SetCapture(f func(event *tcell.EventKey) *tcell.EventKey) func() {
	originalInputCapture := g.App.GetInputCapture()
	g.App.SetInputCapture(f)
	return func() {
		g.App.SetInputCapture(originalInputCapture)
	}
}

// SetColorScheme sets the color scheme
func (g *Gallery) SetColorScheme(scheme ColorScheme) {
	g.ColorScheme = scheme

	bg, fg := schemeColors(scheme)
	g.Image.SetBackgroundColor(bg)
	g.StatusBar.SetBackgroundColor(bg)
	g.StatusBar.SetTextColor(fg)
}

// CycleColorScheme cycles through the color schemes
func (g *Gallery) CycleColorScheme() {
	g.SetColorScheme((g.ColorScheme + 1) % 3)
}

func schemeColors(scheme ColorScheme) (tcell.Color, tcell.Color) {
	switch scheme {
	case DarkColorScheme:
		return tcell.ColorDarkSlateGray, tcell.ColorWhite
	case LightColorScheme:
		return tcell.ColorWhite, tcell.ColorBlack
	default:
		return tcell.ColorDefault, tcell.ColorDefault
	}
}
