// Package filter derives the visible part of the graph from the current
// filter state. It is pure: it never mutates its inputs and has no failure path.
package filter

import (
	"sort"
	"strings"

	"github.com/knowledgebase/netgraph/pkg/common"
)

// TypeSet is a set of normalized type names. The zero value is an empty set,
// which the filter treats as "no restriction".
type TypeSet map[string]struct{}

// NormalizeType maps a type name to the form used as set key.
func NormalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// NewTypeSet builds a set from the given names, normalizing and dropping blanks.
func NewTypeSet(types ...string) TypeSet {
	s := make(TypeSet, len(types))
	for _, t := range types {
		s.Add(t)
	}
	return s
}

func (s TypeSet) Has(t string) bool {
	_, ok := s[NormalizeType(t)]
	return ok
}

// Add inserts t and reports whether the set changed.
func (s TypeSet) Add(t string) bool {
	t = NormalizeType(t)
	if t == "" {
		return false
	}
	if _, ok := s[t]; ok {
		return false
	}
	s[t] = struct{}{}
	return true
}

// Remove deletes t and reports whether the set changed.
func (s TypeSet) Remove(t string) bool {
	t = NormalizeType(t)
	if _, ok := s[t]; !ok {
		return false
	}
	delete(s, t)
	return true
}

func (s TypeSet) Clone() TypeSet {
	out := make(TypeSet, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}

// Sorted returns the members in lexical order.
func (s TypeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// State is the complete input of the filter besides the data itself.
type State struct {
	SearchTerm        string
	EntityTypes       TypeSet
	RelationshipTypes TypeSet
}

// Result is the visible graph. Both slices are always computed together from
// one State, so Relationships only references ids present in Entities.
type Result struct {
	Entities      []common.Entity
	Relationships []common.Relationship
}

// Apply computes the visible entities and relationships.
//
// Entities are filtered first. Relationship inclusion is decided against the
// already filtered entity ids, never against the full store, so no edge can
// survive whose endpoint was filtered out or never existed.
func Apply(entities []common.Entity, relationships []common.Relationship, s State) Result {
	visible := Entities(entities, s.SearchTerm, s.EntityTypes)

	ids := make(map[string]struct{}, len(visible))
	for i := range visible {
		ids[visible[i].ID] = struct{}{}
	}

	return Result{
		Entities:      visible,
		Relationships: Relationships(relationships, ids, s.RelationshipTypes),
	}
}

// Entities keeps entities whose type is in types (or types is empty) and
// whose name or title contains search, ignoring case (or search is empty).
func Entities(entities []common.Entity, search string, types TypeSet) []common.Entity {
	needle := strings.ToLower(search)
	out := make([]common.Entity, 0, len(entities))
	for _, e := range entities {
		if len(types) > 0 && !types.Has(e.Type) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(e.Name), needle) &&
			!strings.Contains(strings.ToLower(e.Title), needle) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Relationships keeps relationships whose endpoints are both in ids and whose
// type is in types (or types is empty).
func Relationships(relationships []common.Relationship, ids map[string]struct{}, types TypeSet) []common.Relationship {
	out := make([]common.Relationship, 0, len(relationships))
	for _, r := range relationships {
		if _, ok := ids[r.Source]; !ok {
			continue
		}
		if _, ok := ids[r.Target]; !ok {
			continue
		}
		if len(types) > 0 && !types.Has(r.Type) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// RelationshipTypes lists the distinct normalized relationship types in
// order of first appearance.
func RelationshipTypes(relationships []common.Relationship) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range relationships {
		t := NormalizeType(r.Type)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
