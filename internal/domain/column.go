package domain

import (
	"slices"
	"strconv"
	"strings"
)

// Column is one rendered status grouping on the board.
type Column struct {
	StatusID   string
	Name       string
	ColorHint  string
	Ordinal    int
	IsTerminal bool
}

// openPalette and closedPalette hold the colour hints assigned by ordinal.
var (
	openPalette   = []string{"#7aa2f7", "#e0af68", "#9ece6a", "#bb9af7", "#7dcfff", "#ff9e64"}
	closedPalette = []string{"#565f89", "#737aa2"}
)

// NewColumn validates and constructs one column.
func NewColumn(statusID, name string, ordinal int, terminal bool) (Column, error) {
	statusID = strings.TrimSpace(statusID)
	name = strings.TrimSpace(name)
	if statusID == "" {
		return Column{}, ErrInvalidID
	}
	if name == "" {
		return Column{}, ErrInvalidName
	}
	if ordinal < 0 {
		return Column{}, ErrInvalidOrdinal
	}
	return Column{
		StatusID:   statusID,
		Name:       name,
		ColorHint:  colorHintFor(ordinal, terminal),
		Ordinal:    ordinal,
		IsTerminal: terminal,
	}, nil
}

// colorHintFor derives a stable colour hint from ordinal and terminal flag.
func colorHintFor(ordinal int, terminal bool) string {
	if terminal {
		return closedPalette[ordinal%len(closedPalette)]
	}
	return openPalette[ordinal%len(openPalette)]
}

// SortColumns orders columns by ordinal, breaking ties by ascending status id.
func SortColumns(columns []Column) []Column {
	out := slices.Clone(columns)
	slices.SortStableFunc(out, func(a, b Column) int {
		if a.Ordinal != b.Ordinal {
			if a.Ordinal < b.Ordinal {
				return -1
			}
			return 1
		}
		return CompareIDs(a.StatusID, b.StatusID)
	})
	return out
}

// CompareIDs compares two opaque ids numerically when both are integers, otherwise lexically.
func CompareIDs(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
