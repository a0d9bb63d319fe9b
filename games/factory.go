package games

import (
	"sort"
	"strings"

	"romrando/rom"
)

// Format recognizes the header of one cartridge format.
type Format interface {
	Name() string

	// Key extracts the table key for img, or "" when the header does not carry one.
	Key(img *rom.Image) string
}

type titleFormat struct {
	name   string
	field  rom.Field
	marker string
}

func (f titleFormat) Name() string { return f.name }

func (f titleFormat) Key(img *rom.Image) string {
	if strings.Contains(strings.ToUpper(img.Title(f.field)), f.marker) {
		return f.marker
	}
	return ""
}

type codeFormat struct {
	name  string
	field rom.Field
}

func (f codeFormat) Name() string { return f.name }

func (f codeFormat) Key(img *rom.Image) string {
	return img.ASCII(f.field)
}

// formats in the order they are tried; the first one whose key is in the table wins.
// The GBC title goes first because it has no code field for the others to collide with.
var formats = []Format{
	titleFormat{name: "GBC", field: rom.GBCTitle, marker: crystalMarker},
	codeFormat{name: "GBA", field: rom.GBAGameCode},
	codeFormat{name: "NDS", field: rom.NDSGameCode},
}

// Formats returns the cartridge formats in detection order.
func Formats() []Format {
	return append([]Format(nil), formats...)
}

// Identify classifies img, returning the game and the name of the format that matched.
// An unrecognized, truncated or malformed image returns a nil game.
func Identify(img *rom.Image) (*Game, string) {
	if img == nil {
		return nil, ""
	}
	for _, f := range formats {
		key := f.Key(img)
		if key == "" {
			continue
		}
		if g, ok := table[key]; ok {
			return g.clone(), f.Name()
		}
	}
	return nil, ""
}

// Classify is Identify without the format name.
func Classify(img *rom.Image) *Game {
	g, _ := Identify(img)
	return g
}

func ClassifyBytes(contents []byte) *Game {
	return Classify(rom.FromBytes(contents))
}

// Lookup returns the game registered under a game code or title marker.
func Lookup(key string) (*Game, bool) {
	g, ok := table[key]
	if !ok {
		return nil, false
	}
	return g.clone(), true
}

// Keys returns a sorted list of the registered game codes and title markers.
func Keys() []string {
	list := make([]string, 0, len(table))
	for key := range table {
		list = append(list, key)
	}
	sort.Strings(list)
	return list
}
