// Package layout positions visible entities on a 2D plane.
//
// A Simulation is an owned, explicitly stepped relaxation: every Tick nudges
// the free nodes toward lower energy under link, charge, centering and
// collision forces, and cools a temperature (alpha) until the layout settles.
// Dragged nodes are pinned and excluded from the physics until released.
package layout

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/knowledgebase/netgraph/pkg/common"

	"gonum.org/v1/gonum/spatial/r2"
)

var ErrUnknownNode = errors.New("unknown node")

type Mode string

const (
	ModeForce        Mode = "force"
	ModeHierarchical Mode = "hierarchical"
)

func (m Mode) Valid() bool {
	return m == ModeForce || m == ModeHierarchical
}

// Config holds the physical constants of a simulation. DefaultConfig returns
// the values the viewer ships with.
type Config struct {
	Width  float64
	Height float64

	// Rest length of a link is LinkDistance - LinkStrengthFactor*strength,
	// never below MinLinkDistance.
	LinkDistance       float64
	LinkStrengthFactor float64
	MinLinkDistance    float64

	Charge      float64
	Theta       float64
	DistanceMin float64
	// Graphs with more nodes than this use the Barnes-Hut approximation.
	BarnesHutThreshold int

	CenterStrength float64

	CollideBase          float64
	CollidePerConnection float64

	AlphaMin        float64
	AlphaDecay      float64
	VelocityDecay   float64
	DragAlphaTarget float64
	ReleaseAlpha    float64

	LevelGap          float64
	NodeGap           float64
	HierarchyStrength float64

	Seed uint64
}

func DefaultConfig(width, height float64) Config {
	return Config{
		Width:  width,
		Height: height,

		LinkDistance:       150,
		LinkStrengthFactor: 5,
		MinLinkDistance:    30,

		Charge:             -500,
		Theta:              0.9,
		DistanceMin:        1,
		BarnesHutThreshold: 64,

		CenterStrength: 1,

		CollideBase:          10,
		CollidePerConnection: 2,

		AlphaMin:        0.001,
		AlphaDecay:      1 - math.Pow(0.001, 1.0/300),
		VelocityDecay:   0.4,
		DragAlphaTarget: 0.3,
		ReleaseAlpha:    0.3,

		LevelGap:          120,
		NodeGap:           100,
		HierarchyStrength: 0.5,

		Seed: 1,
	}
}

// Position is the externally visible state of one node.
type Position struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Pinned bool    `json:"pinned,omitempty"`
}

type node struct {
	id              string
	connectionCount int
	pos             r2.Vec
	vel             r2.Vec
	pinned          bool
	fixed           r2.Vec
	radius          float64
}

func (n *node) Coord2() r2.Vec { return n.pos }
func (n *node) Mass() float64 { return 1 }

type link struct {
	source, target int
	distance       float64
	strength       float64
	bias           float64
}

// Simulation holds the live position table for one visible graph. It is not
// safe for concurrent use; the owning session serializes all calls.
type Simulation struct {
	cfg   Config
	nodes []*node
	index map[string]int
	links []link

	mode    Mode
	targets []r2.Vec

	alpha       float64
	alphaTarget float64
	ticks       uint64
	drags       map[int]struct{}
	stopped     bool

	rng *rand.Rand
}

type Option func(*Simulation)

// WithPositions seeds nodes that already had a position in a previous
// simulation, so refiltering does not scatter the surviving nodes.
func WithPositions(prev []Position) Option {
	return func(s *Simulation) {
		for _, p := range prev {
			if i, ok := s.index[p.ID]; ok {
				s.nodes[i].pos = r2.Vec{X: p.X, Y: p.Y}
			}
		}
	}
}

// WithMode starts the simulation in the given layout mode.
func WithMode(m Mode) Option {
	return func(s *Simulation) {
		if m.Valid() {
			s.mode = m
		}
	}
}

// New creates a simulation for the given visible graph. Relationships whose
// endpoints are not among entities, and self loops, exert no force.
func New(entities []common.Entity, relationships []common.Relationship, cfg Config, opts ...Option) *Simulation {
	s := &Simulation{
		cfg:   cfg,
		nodes: make([]*node, len(entities)),
		index: make(map[string]int, len(entities)),
		mode:  ModeForce,
		alpha: 1,
		drags: make(map[int]struct{}),
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}

	center := r2.Vec{X: cfg.Width / 2, Y: cfg.Height / 2}
	initialAngle := math.Pi * (3 - math.Sqrt(5))
	for i, e := range entities {
		radius := 10 * math.Sqrt(0.5+float64(i))
		angle := float64(i) * initialAngle
		s.nodes[i] = &node{
			id:              e.ID,
			connectionCount: e.ConnectionCount,
			pos:             r2.Add(center, r2.Vec{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)}),
			radius:          cfg.CollideBase + cfg.CollidePerConnection*float64(max(e.ConnectionCount, 0)),
		}
		s.index[e.ID] = i
	}

	s.initLinks(relationships)

	for _, opt := range opts {
		opt(s)
	}
	if s.mode == ModeHierarchical {
		s.targets = s.hierarchyTargets()
	}
	return s
}

func (s *Simulation) initLinks(relationships []common.Relationship) {
	count := make([]int, len(s.nodes))
	for _, r := range relationships {
		si, okS := s.index[r.Source]
		ti, okT := s.index[r.Target]
		if !okS || !okT || si == ti {
			continue
		}
		s.links = append(s.links, link{
			source:   si,
			target:   ti,
			distance: s.restLength(r.Strength),
		})
		count[si]++
		count[ti]++
	}
	for i := range s.links {
		l := &s.links[i]
		cs, ct := float64(count[l.source]), float64(count[l.target])
		l.strength = 1 / math.Min(cs, ct)
		l.bias = cs / (cs + ct)
	}
}

func (s *Simulation) restLength(strength float64) float64 {
	return math.Max(s.cfg.LinkDistance-s.cfg.LinkStrengthFactor*strength, s.cfg.MinLinkDistance)
}

// Tick advances the simulation by one step and reports whether anything
// moved. A stopped or settled simulation does nothing.
func (s *Simulation) Tick() bool {
	if s.stopped || s.Settled() {
		return false
	}

	s.alpha += (s.alphaTarget - s.alpha) * s.cfg.AlphaDecay

	switch s.mode {
	case ModeHierarchical:
		s.applyPosition()
		s.applyCollide()
	default:
		s.applyLinks()
		s.applyCharge()
		s.applyCenter()
		s.applyCollide()
	}

	decay := 1 - s.cfg.VelocityDecay
	for _, n := range s.nodes {
		if n.pinned {
			n.pos = n.fixed
			n.vel = r2.Vec{}
			continue
		}
		n.vel = r2.Scale(decay, n.vel)
		n.pos = r2.Add(n.pos, n.vel)
	}

	s.ticks++
	return true
}

// Settled reports whether the temperature dropped below the threshold with
// nothing holding it up.
func (s *Simulation) Settled() bool {
	return s.alpha < s.cfg.AlphaMin && s.alphaTarget < s.cfg.AlphaMin
}

// Reheat raises the temperature to at least alpha.
func (s *Simulation) Reheat(alpha float64) {
	if alpha > s.alpha {
		s.alpha = alpha
	}
}

// Stop halts the simulation for good. Further ticks are no-ops.
func (s *Simulation) Stop() {
	s.stopped = true
}

func (s *Simulation) Stopped() bool { return s.stopped }
func (s *Simulation) Alpha() float64 { return s.alpha }
func (s *Simulation) Ticks() uint64 { return s.ticks }
func (s *Simulation) Mode() Mode { return s.mode }
func (s *Simulation) Len() int { return len(s.nodes) }

// SetMode switches the layout algorithm. Nodes keep their current positions
// and glide toward the new arrangement as the reheated simulation runs.
func (s *Simulation) SetMode(m Mode) {
	if !m.Valid() || m == s.mode {
		return
	}
	s.mode = m
	s.targets = nil
	if m == ModeHierarchical {
		s.targets = s.hierarchyTargets()
	}
	s.Reheat(1)
}

// StartDrag pins the node at its current position. The first active drag
// holds the temperature at DragAlphaTarget so neighbors follow the pointer.
func (s *Simulation) StartDrag(id string) error {
	i, ok := s.index[id]
	if !ok {
		return ErrUnknownNode
	}
	n := s.nodes[i]
	n.pinned = true
	n.fixed = n.pos
	s.drags[i] = struct{}{}
	s.alphaTarget = s.cfg.DragAlphaTarget
	return nil
}

// Drag moves a pinned node to (x, y).
func (s *Simulation) Drag(id string, x, y float64) error {
	i, ok := s.index[id]
	if !ok {
		return ErrUnknownNode
	}
	n := s.nodes[i]
	n.pinned = true
	n.fixed = r2.Vec{X: x, Y: y}
	n.pos = n.fixed
	n.vel = r2.Vec{}
	return nil
}

// EndDrag releases the pin so the node re-enters the simulation, and
// reheats so the graph can adjust around its new position.
func (s *Simulation) EndDrag(id string) error {
	i, ok := s.index[id]
	if !ok {
		return ErrUnknownNode
	}
	n := s.nodes[i]
	n.pinned = false
	delete(s.drags, i)
	if len(s.drags) == 0 {
		s.alphaTarget = 0
	}
	s.Reheat(s.cfg.ReleaseAlpha)
	return nil
}

// Positions returns the current positions in entity order.
func (s *Simulation) Positions() []Position {
	out := make([]Position, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = Position{ID: n.id, X: n.pos.X, Y: n.pos.Y, Pinned: n.pinned}
	}
	return out
}

func (s *Simulation) Position(id string) (Position, bool) {
	i, ok := s.index[id]
	if !ok {
		return Position{}, false
	}
	n := s.nodes[i]
	return Position{ID: n.id, X: n.pos.X, Y: n.pos.Y, Pinned: n.pinned}, true
}

func (s *Simulation) jiggle() float64 {
	return (s.rng.Float64() - 0.5) * 1e-6
}
