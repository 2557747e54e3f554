package canvas

import (
	"math"
)

const (
	fillDefault = "#f5f5f5"
	fillHovered = "#e0e0e0"
	strokeNode  = "#333"
	strokeSel   = "#000"
)

// NodeRadius is the drawn circle radius for a node.
func NodeRadius(connectionCount int) float64 {
	return 10 + math.Min(1.5*float64(connectionCount), 30)
}

// LabelOffset is the horizontal distance of a node label from its center.
func LabelOffset(connectionCount int) float64 {
	return 15 + math.Min(1.5*float64(connectionCount), 30)
}

// EdgeWidth is the stroke width of an edge, capped at 3.
func EdgeWidth(strength float64) float64 {
	return math.Min(strength/3, 3)
}

type NodeView struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Title           string  `json:"title"`
	ConnectionCount int     `json:"connectionCount"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Radius          float64 `json:"radius"`
	LabelDX         float64 `json:"labelDx"`
	Fill            string  `json:"fill"`
	Stroke          string  `json:"stroke"`
	StrokeWidth     float64 `json:"strokeWidth"`
	Selected        bool    `json:"selected,omitempty"`
	Pinned          bool    `json:"pinned,omitempty"`
}

type EdgeView struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Width  float64 `json:"width"`
	LabelX float64 `json:"labelX"`
	LabelY float64 `json:"labelY"`
}

// Scene is everything needed to draw one frame. Node and edge coordinates
// are in world space; Transform maps them to the screen.
type Scene struct {
	Generation uint64     `json:"generation"`
	Tick       uint64     `json:"tick"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	Transform  Transform  `json:"transform"`
	Layout     string     `json:"layout"`
	Settled    bool       `json:"settled"`
	Nodes      []NodeView `json:"nodes"`
	Edges      []EdgeView `json:"edges"`
	Tooltip    *Tooltip   `json:"tooltip,omitempty"`
	Selected   string     `json:"selected,omitempty"`
}

// Scene draws the current state. Edges follow the live positions of their
// endpoints; an edge with an endpoint that has no position is skipped.
func (c *Controller) Scene() Scene {
	s := Scene{
		Generation: c.generation,
		Width:      c.width,
		Height:     c.height,
		Transform:  c.transform,
		Nodes:      make([]NodeView, 0, len(c.entities)),
		Edges:      make([]EdgeView, 0, len(c.relationships)),
		Tooltip:    c.Tooltip(),
		Selected:   c.selected,
	}
	if c.sim == nil {
		return s
	}
	s.Tick = c.sim.Ticks()
	s.Layout = string(c.sim.Mode())
	s.Settled = c.sim.Settled()

	positions := c.sim.Positions()
	byID := make(map[string]int, len(positions))
	for i, p := range positions {
		byID[p.ID] = i
	}

	for _, e := range c.entities {
		i, ok := byID[e.ID]
		if !ok {
			continue
		}
		p := positions[i]
		n := NodeView{
			ID:              e.ID,
			Name:            e.Name,
			Type:            e.Type,
			Title:           e.Title,
			ConnectionCount: e.ConnectionCount,
			X:               p.X,
			Y:               p.Y,
			Radius:          NodeRadius(e.ConnectionCount),
			LabelDX:         LabelOffset(e.ConnectionCount),
			Fill:            fillDefault,
			Stroke:          strokeNode,
			StrokeWidth:     1,
			Pinned:          p.Pinned,
		}
		if e.ID == c.hovered {
			n.Fill = fillHovered
		}
		if e.ID == c.selected {
			n.Stroke = strokeSel
			n.StrokeWidth = 2
			n.Selected = true
		}
		s.Nodes = append(s.Nodes, n)
	}

	for _, r := range c.relationships {
		si, okS := byID[r.Source]
		ti, okT := byID[r.Target]
		if !okS || !okT {
			continue
		}
		src, dst := positions[si], positions[ti]
		s.Edges = append(s.Edges, EdgeView{
			Source: r.Source,
			Target: r.Target,
			Type:   r.Type,
			X1:     src.X,
			Y1:     src.Y,
			X2:     dst.X,
			Y2:     dst.Y,
			Width:  EdgeWidth(r.Strength),
			LabelX: (src.X + dst.X) / 2,
			LabelY: (src.Y + dst.Y) / 2,
		})
	}
	return s
}
