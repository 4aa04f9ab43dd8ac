// Package roles cycles a hero "role" label between its primary-language text
// and a localized rendering, one phase per tick.
package roles

import (
	"errors"

	"github.com/mattn/go-runewidth"
)

var ErrNoEntries = errors.New("roles: at least one entry is required")

type Entry struct {
	Primary     string `yaml:"primary" json:"primary"`
	Localized   string `yaml:"localized" json:"localized"`
	Translation string `yaml:"translation" json:"translation"`
}

// State is the animator's only mutable data. Index is always in [0, n).
type State struct {
	Index         int  `json:"index"`
	ShowLocalized bool `json:"showLocalized"`
}

// Next applies one tick. A localized phase advances to the next entry's
// primary phase; a primary phase switches to the same entry's localized one.
func (s State) Next(n int) State {
	if n <= 0 {
		return State{}
	}
	if s.ShowLocalized {
		return State{Index: (s.Index + 1) % n}
	}
	return State{Index: s.Index % n, ShowLocalized: true}
}

// Frame is what is on screen for a state.
type Frame struct {
	State       State  `json:"state"`
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
}

func FrameFor(entries []Entry, s State) Frame {
	entry := entries[s.Index]
	if s.ShowLocalized {
		return Frame{State: s, Text: entry.Localized, Translation: entry.Translation}
	}
	return Frame{State: s, Text: entry.Primary}
}

// Placeholder returns the widest label any phase can show, measured in
// terminal cells so full-width scripts count double.
func Placeholder(entries []Entry) string {
	widest := ""
	width := -1
	for _, entry := range entries {
		for _, label := range []string{entry.Primary, entry.Localized} {
			if w := runewidth.StringWidth(label); w > width {
				widest, width = label, w
			}
		}
	}
	return widest
}

// Width is the display width reserved for the label slot.
func Width(entries []Entry) int {
	return runewidth.StringWidth(Placeholder(entries))
}

// Pad right-fills text to width cells so the slot keeps a fixed size.
func Pad(text string, width int) string {
	return runewidth.FillRight(text, width)
}
