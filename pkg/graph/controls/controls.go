// Package controls owns the editable filter and view state of a viewer.
// It is the only mutator of that state and performs no derivation itself.
package controls

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/graph/filter"
	"github.com/knowledgebase/netgraph/pkg/graph/layout"
)

var (
	ErrUnknownLayout = errors.New("unknown layout")
	ErrUnknownZoom   = errors.New("unknown zoom direction")
	ErrEmptyType     = errors.New("type must not be empty")
)

type ZoomDirection string

const (
	ZoomIn    ZoomDirection = "in"
	ZoomOut   ZoomDirection = "out"
	ZoomReset ZoomDirection = "reset"
)

// KnownRelationshipTypes is the fixed list offered in the relationship
// type selector, in display order.
var KnownRelationshipTypes = []string{
	"financial",
	"ownership",
	"control",
	"founded",
	"acquisition",
	"partnership",
	"sanctions",
	"leadership",
	"political",
	"legal",
	"criminal",
	"membership",
	"alleged",
}

// KnownEntityTypes is the fixed list offered in the entity type selector.
var KnownEntityTypes = []string{common.EntityTypePerson, common.EntityTypeOrganization}

// Zoomer receives zoom commands. The canvas controller implements it.
type Zoomer interface {
	ZoomIn()
	ZoomOut()
	Reset()
}

type Bar struct {
	search            string
	entityTypes       filter.TypeSet
	relationshipTypes filter.TypeSet
	layout            layout.Mode
	knownRelTypes     []string
	zoomer            Zoomer
}

// New returns a control bar with the default state: both entity types
// selected, every relationship type present in the data selected, force
// layout and an empty search.
func New(dataRelationshipTypes []string, zoomer Zoomer) *Bar {
	known := append([]string(nil), KnownRelationshipTypes...)
	seen := filter.NewTypeSet(known...)
	for _, t := range dataRelationshipTypes {
		if seen.Add(t) {
			known = append(known, filter.NormalizeType(t))
		}
	}
	return &Bar{
		entityTypes:       filter.NewTypeSet(KnownEntityTypes...),
		relationshipTypes: filter.NewTypeSet(dataRelationshipTypes...),
		layout:            layout.ModeForce,
		knownRelTypes:     known,
		zoomer:            zoomer,
	}
}

// SetSearchTerm replaces the search term and reports whether it changed.
func (b *Bar) SetSearchTerm(term string) bool {
	if term == b.search {
		return false
	}
	b.search = term
	return true
}

// ToggleEntityType adds t when absent and removes it when present. It
// returns whether t is selected afterwards.
func (b *Bar) ToggleEntityType(t string) (bool, error) {
	return toggle(b.entityTypes, t)
}

// ToggleRelationshipType is ToggleEntityType for relationship types.
func (b *Bar) ToggleRelationshipType(t string) (bool, error) {
	return toggle(b.relationshipTypes, t)
}

func toggle(set filter.TypeSet, t string) (bool, error) {
	if filter.NormalizeType(t) == "" {
		return false, ErrEmptyType
	}
	if set.Remove(t) {
		return false, nil
	}
	set.Add(t)
	return true, nil
}

// SetLayout switches the layout mode and reports whether it changed.
func (b *Bar) SetLayout(mode string) (bool, error) {
	m := layout.Mode(strings.ToLower(strings.TrimSpace(mode)))
	if !m.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownLayout, mode)
	}
	if m == b.layout {
		return false, nil
	}
	b.layout = m
	return true, nil
}

// Zoom forwards a zoom command to the canvas.
func (b *Bar) Zoom(direction string) error {
	switch ZoomDirection(strings.ToLower(strings.TrimSpace(direction))) {
	case ZoomIn:
		b.zoomer.ZoomIn()
	case ZoomOut:
		b.zoomer.ZoomOut()
	case ZoomReset:
		b.zoomer.Reset()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownZoom, direction)
	}
	return nil
}

func (b *Bar) Layout() layout.Mode { return b.layout }

// FilterState returns a copy of the filter input. Later toggles do not
// affect a returned state.
func (b *Bar) FilterState() filter.State {
	return filter.State{
		SearchTerm:        b.search,
		EntityTypes:       b.entityTypes.Clone(),
		RelationshipTypes: b.relationshipTypes.Clone(),
	}
}

// Snapshot is the serializable view of the control bar.
type Snapshot struct {
	SearchTerm             string      `json:"searchTerm"`
	EntityTypes            []string    `json:"entityTypes"`
	RelationshipTypes      []string    `json:"relationshipTypes"`
	Layout                 layout.Mode `json:"layout"`
	KnownEntityTypes       []string    `json:"knownEntityTypes"`
	KnownRelationshipTypes []string    `json:"knownRelationshipTypes"`
}

func (b *Bar) Snapshot() Snapshot {
	return Snapshot{
		SearchTerm:             b.search,
		EntityTypes:            b.entityTypes.Sorted(),
		RelationshipTypes:      b.relationshipTypes.Sorted(),
		Layout:                 b.layout,
		KnownEntityTypes:       append([]string(nil), KnownEntityTypes...),
		KnownRelationshipTypes: append([]string(nil), b.knownRelTypes...),
	}
}
