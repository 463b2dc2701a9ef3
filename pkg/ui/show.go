package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = `
bookimg - EPUB image viewer

Key Bindings:
    Help             : ?
    Quit             : q         ESC
    Next image       : n   l     RIGHT   PGDN   SPC
    Prev image       : p   h     LEFT    PGUP
    First image      : g
    Last image       : G
    Metadata         : m
    Switch colorsch  : c
`

// ShowMetadata shows the metadata over the gallery until Esc, Enter or q
func (g *Gallery) ShowMetadata(metadata [][]string) {
	table := tview.NewTable().
		SetBorders(false).
		SetSelectable(false, false)

	if len(metadata) == 0 {
		table.SetCell(0, 0, tview.NewTableCell("No metadata found").
			SetTextColor(tcell.ColorRed).
			SetAlign(tview.AlignCenter).
			SetExpansion(1))
	}
	for i, item := range metadata {
		table.SetCell(i, 0, tview.NewTableCell(item[0]).
			SetTextColor(tcell.ColorYellow).
			SetAlign(tview.AlignLeft).
			SetExpansion(1))
		table.SetCell(i, 1, tview.NewTableCell(item[1]).
			SetAlign(tview.AlignLeft).
			SetExpansion(2))
	}

	bg, _ := schemeColors(g.ColorScheme)
	table.SetBackgroundColor(bg)

	frame := tview.NewFrame(table).
		SetBorders(2, 2, 2, 2, 4, 4).
		AddText("Metadata", true, tview.AlignCenter, tcell.ColorWhite).
		AddText("Press Esc or Enter to close", false, tview.AlignCenter, tcell.ColorWhite)

	g.overlay(frame)
}

// ShowHelp shows the key bindings over the gallery
func (g *Gallery) ShowHelp() {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText(helpText)

	frame := tview.NewFrame(textView).
		SetBorders(2, 2, 2, 2, 4, 4).
		AddText("Help", true, tview.AlignCenter, tcell.ColorWhite).
		AddText("Press Esc or Enter to close", false, tview.AlignCenter, tcell.ColorWhite)

	g.overlay(frame)
}

// overlay replaces the gallery with p until Esc, Enter or q is pressed
func (g *Gallery) overlay(p tview.Primitive) {
	var resetCapture func()
	resetCapture = g.SetCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape, tcell.KeyEnter:
		case tcell.KeyUp, tcell.KeyDown, tcell.KeyPgUp, tcell.KeyPgDn:
			return event
		case tcell.KeyRune:
			if event.Rune() != 'q' {
				return nil
			}
		default:
			return nil
		}

		resetCapture()
		g.App.SetRoot(g.layout, true)
		return nil
	})

	g.App.SetRoot(p, true)
}
