// Package details builds the connection list shown for a selected entity.
package details

import (
	"github.com/knowledgebase/netgraph/pkg/common"
)

type Direction string

const (
	// DirectionTo marks a relationship whose source is the selected entity.
	DirectionTo Direction = "to"
	// DirectionFrom marks a relationship whose target is the selected entity.
	DirectionFrom Direction = "from"
)

type Connection struct {
	Entity       common.Entity       `json:"entity"`
	Relationship common.Relationship `json:"relationship"`
	Direction    Direction           `json:"direction"`
}

type Group struct {
	Type        string       `json:"type"`
	Connections []Connection `json:"connections"`
}

type Details struct {
	Entity common.Entity `json:"entity"`
	Groups []Group       `json:"groups"`
	Total  int           `json:"total"`
}

// Resolve collects the relationships touching entity, resolves the other
// endpoint against visible and groups the result by relationship type in
// order of first appearance.
//
// A connection whose other endpoint is not visible is dropped. Resolve only
// reads its arguments, so repeated calls with the same input are identical.
func Resolve(entity common.Entity, relationships []common.Relationship, visible []common.Entity) Details {
	index := common.EntityIndex(visible)

	d := Details{Entity: entity, Groups: []Group{}}
	groups := make(map[string]int)
	for _, r := range relationships {
		var otherID string
		var dir Direction
		switch entity.ID {
		case r.Source:
			otherID, dir = r.Target, DirectionTo
		case r.Target:
			otherID, dir = r.Source, DirectionFrom
		default:
			continue
		}

		i, ok := index[otherID]
		if !ok {
			continue
		}

		g, ok := groups[r.Type]
		if !ok {
			g = len(d.Groups)
			groups[r.Type] = g
			d.Groups = append(d.Groups, Group{Type: r.Type})
		}
		d.Groups[g].Connections = append(d.Groups[g].Connections, Connection{
			Entity:       visible[i],
			Relationship: r,
			Direction:    dir,
		})
		d.Total++
	}
	return d
}
