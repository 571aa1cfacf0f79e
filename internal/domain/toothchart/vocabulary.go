package toothchart

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the canonical clinical state of a single tooth. It is the only
// field charting reads to decide how a tooth is drawn.
type Status string

const (
	StatusHealthy          Status = "healthy"
	StatusCaries           Status = "caries"
	StatusFilled           Status = "filled"
	StatusCrown            Status = "crown"
	StatusMissing          Status = "missing"
	StatusAttention        Status = "attention"
	StatusExtractionNeeded Status = "extraction_needed"
	StatusRootCanal        Status = "root_canal"
	StatusImplant          Status = "implant"
)

// ErrUnknownStatus is returned when external input names a status outside the enum.
var ErrUnknownStatus = errors.New("unknown tooth status")

// Statuses lists every canonical status in chart legend order.
func Statuses() []Status {
	return []Status{
		StatusHealthy, StatusCaries, StatusFilled, StatusCrown, StatusMissing,
		StatusAttention, StatusExtractionNeeded, StatusRootCanal, StatusImplant,
	}
}

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses() {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus validates free-form status input at the system boundary.
// "Root Canal", "root-canal" and "ROOT_CANAL" all parse to StatusRootCanal.
func ParseStatus(raw string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	s := Status(norm)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

// Color is a display color as a lower-case "#rrggbb" hex triplet.
type Color string

// Palette binds each status to its canonical color. A Palette is built once
// and never mutated; share it by value.
type Palette struct {
	colors map[Status]Color
}

// DefaultPalette returns the chart colors used across the clinic UI.
func DefaultPalette() Palette {
	return NewPalette(map[Status]Color{
		StatusHealthy:          "#22c55e",
		StatusCaries:           "#ef4444",
		StatusFilled:           "#3b82f6",
		StatusCrown:            "#eab308",
		StatusMissing:          "#6b7280",
		StatusAttention:        "#f97316",
		StatusExtractionNeeded: "#ea580c",
		StatusRootCanal:        "#8b5cf6",
		StatusImplant:          "#06b6d4",
	})
}

// NewPalette copies colors into a new Palette. It panics if any canonical
// status is left without a color, since CanonicalColor must be total.
func NewPalette(colors map[Status]Color) Palette {
	p := Palette{colors: make(map[Status]Color, len(colors))}
	for s, c := range colors {
		p.colors[s] = Color(strings.ToLower(string(c)))
	}
	for _, s := range Statuses() {
		if _, ok := p.colors[s]; !ok {
			panic(fmt.Sprintf("toothchart: palette has no color for status %q", s))
		}
	}
	return p
}

// CanonicalColor returns the color defined for s. Statuses must be validated
// before they get here; an unknown status panics.
func (p Palette) CanonicalColor(s Status) Color {
	c, ok := p.colors[s]
	if !ok {
		panic(fmt.Sprintf("toothchart: no canonical color for status %q", s))
	}
	return c
}
