// Package canvas holds the view side of a graph viewer: the zoom and pan
// transform, pointer routing, the hover tooltip and the selection. It reads
// node positions from a layout.Simulation and produces Scenes for rendering.
package canvas

import (
	"math"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/graph/layout"
)

const (
	MinScale  = 0.3
	MaxScale  = 3.0
	ZoomStep  = 1.2
	ClickSlop = 3.0

	tooltipOffsetX = 10
	tooltipOffsetY = -10
)

// Transform maps world coordinates to screen coordinates as
// screen = world*K + (X, Y).
type Transform struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	K float64 `json:"k"`
}

var Identity = Transform{K: 1}

func (t Transform) Apply(x, y float64) (float64, float64) {
	return x*t.K + t.X, y*t.K + t.Y
}

func (t Transform) Invert(sx, sy float64) (float64, float64) {
	return (sx - t.X) / t.K, (sy - t.Y) / t.K
}

// Tooltip is the single floating hover box. Its position is in screen space.
type Tooltip struct {
	EntityID        string  `json:"entityId"`
	Name            string  `json:"name"`
	Title           string  `json:"title"`
	ConnectionCount int     `json:"connectionCount"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
}

// SelectFunc is called whenever the selection changes. A nil entity means
// the selection was cleared.
type SelectFunc func(e *common.Entity)

type gestureKind int

const (
	gestureNone gestureKind = iota
	gesturePan
	gestureDrag
)

type gesture struct {
	kind   gestureKind
	nodeID string
	startX float64
	startY float64
	lastX  float64
	lastY  float64
	moved  bool
}

// Controller is owned by a single viewer session and is not safe for
// concurrent use.
type Controller struct {
	width, height float64
	transform     Transform

	sim           *layout.Simulation
	entities      []common.Entity
	relationships []common.Relationship
	index         map[string]int

	selected   string
	hovered    string
	tooltip    *Tooltip
	gesture    gesture
	generation uint64

	onSelect SelectFunc
}

func New(width, height float64, onSelect SelectFunc) *Controller {
	return &Controller{
		width:     width,
		height:    height,
		transform: Identity,
		index:     map[string]int{},
		onSelect:  onSelect,
	}
}

// Rebuild discards everything drawn for the previous visible set and starts
// over with the given data and simulation. The view transform and the
// selection survive.
func (c *Controller) Rebuild(entities []common.Entity, relationships []common.Relationship, sim *layout.Simulation) {
	c.entities = entities
	c.relationships = relationships
	c.index = common.EntityIndex(entities)
	c.sim = sim
	c.hovered = ""
	c.tooltip = nil
	c.gesture = gesture{}
	c.generation++
}

// Generation counts full rebuilds of the rendering.
func (c *Controller) Generation() uint64 { return c.generation }

func (c *Controller) Transform() Transform { return c.transform }

func (c *Controller) Tooltip() *Tooltip {
	if c.tooltip == nil {
		return nil
	}
	t := *c.tooltip
	return &t
}

func (c *Controller) Selected() string { return c.selected }

func (c *Controller) ZoomIn() {
	c.zoomAt(c.width/2, c.height/2, c.transform.K*ZoomStep)
}

func (c *Controller) ZoomOut() {
	c.zoomAt(c.width/2, c.height/2, c.transform.K/ZoomStep)
}

func (c *Controller) Reset() {
	c.transform = Identity
}

// ZoomAt zooms one step in (delta < 0) or out (delta > 0) keeping the world
// point under (sx, sy) fixed on screen.
func (c *Controller) ZoomAt(sx, sy, delta float64) {
	switch {
	case delta < 0:
		c.zoomAt(sx, sy, c.transform.K*ZoomStep)
	case delta > 0:
		c.zoomAt(sx, sy, c.transform.K/ZoomStep)
	}
}

func (c *Controller) zoomAt(sx, sy, k float64) {
	k = math.Min(math.Max(k, MinScale), MaxScale)
	wx, wy := c.transform.Invert(sx, sy)
	c.transform = Transform{X: sx - wx*k, Y: sy - wy*k, K: k}
}

// Pan translates the view by a screen-space offset.
func (c *Controller) Pan(dx, dy float64) {
	c.transform.X += dx
	c.transform.Y += dy
}

// Result reports what a pointer event did.
type Result struct {
	Action   string   `json:"action"`
	EntityID string   `json:"entityId,omitempty"`
	Tooltip  *Tooltip `json:"tooltip,omitempty"`
}

const (
	ActionNone      = "none"
	ActionPan       = "pan"
	ActionDrag      = "drag"
	ActionHover     = "hover"
	ActionSelect    = "select"
	ActionDeselect  = "deselect"
	ActionDragStart = "drag_start"
	ActionDragEnd   = "drag_end"
)

// PointerDown starts a node drag when the pointer is over a node and a pan
// otherwise.
func (c *Controller) PointerDown(sx, sy float64) Result {
	c.hovered = ""
	c.tooltip = nil
	c.gesture = gesture{startX: sx, startY: sy, lastX: sx, lastY: sy}

	if id, ok := c.hit(sx, sy); ok && c.sim != nil {
		if err := c.sim.StartDrag(id); err == nil {
			c.gesture.kind = gestureDrag
			c.gesture.nodeID = id
			return Result{Action: ActionDragStart, EntityID: id}
		}
	}
	c.gesture.kind = gesturePan
	return Result{Action: ActionPan}
}

// PointerMove continues the current gesture, or updates the hover tooltip
// when no button is down.
func (c *Controller) PointerMove(sx, sy float64) Result {
	g := &c.gesture
	if g.kind != gestureNone && math.Hypot(sx-g.startX, sy-g.startY) > ClickSlop {
		g.moved = true
	}

	switch g.kind {
	case gestureDrag:
		wx, wy := c.transform.Invert(sx, sy)
		_ = c.sim.Drag(g.nodeID, wx, wy)
		g.lastX, g.lastY = sx, sy
		return Result{Action: ActionDrag, EntityID: g.nodeID}
	case gesturePan:
		c.Pan(sx-g.lastX, sy-g.lastY)
		g.lastX, g.lastY = sx, sy
		return Result{Action: ActionPan}
	}

	id, ok := c.hit(sx, sy)
	if !ok {
		c.Leave()
		return Result{Action: ActionNone}
	}
	e := c.entities[c.index[id]]
	c.hovered = id
	c.tooltip = &Tooltip{
		EntityID:        e.ID,
		Name:            e.Name,
		Title:           e.Title,
		ConnectionCount: e.ConnectionCount,
		X:               sx + tooltipOffsetX,
		Y:               sy + tooltipOffsetY,
	}
	return Result{Action: ActionHover, EntityID: id, Tooltip: c.Tooltip()}
}

// PointerUp ends the current gesture. A gesture that never left the click
// slop is a click: on a node it selects, on the background it deselects.
func (c *Controller) PointerUp(sx, sy float64) Result {
	g := c.gesture
	c.gesture = gesture{}
	if math.Hypot(sx-g.startX, sy-g.startY) > ClickSlop {
		g.moved = true
	}

	switch g.kind {
	case gestureDrag:
		_ = c.sim.EndDrag(g.nodeID)
		if !g.moved {
			c.Select(g.nodeID)
			return Result{Action: ActionSelect, EntityID: g.nodeID}
		}
		return Result{Action: ActionDragEnd, EntityID: g.nodeID}
	case gesturePan:
		if !g.moved {
			c.ClearSelection()
			return Result{Action: ActionDeselect}
		}
		return Result{Action: ActionPan}
	}
	return Result{Action: ActionNone}
}

// Leave drops the tooltip and abandons any gesture, releasing a dragged node.
func (c *Controller) Leave() {
	if c.gesture.kind == gestureDrag && c.sim != nil {
		_ = c.sim.EndDrag(c.gesture.nodeID)
	}
	c.gesture = gesture{}
	c.hovered = ""
	c.tooltip = nil
}

// Click selects the node under (sx, sy) or clears the selection.
func (c *Controller) Click(sx, sy float64) Result {
	if id, ok := c.hit(sx, sy); ok {
		c.Select(id)
		return Result{Action: ActionSelect, EntityID: id}
	}
	c.ClearSelection()
	return Result{Action: ActionDeselect}
}

// Select marks id as selected and notifies the selection callback. It
// reports false when id is not visible.
func (c *Controller) Select(id string) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	if c.selected != id {
		c.selected = id
		c.generation++
	}
	if c.onSelect != nil {
		e := c.entities[i]
		c.onSelect(&e)
	}
	return true
}

func (c *Controller) ClearSelection() {
	if c.selected != "" {
		c.selected = ""
		c.generation++
	}
	if c.onSelect != nil {
		c.onSelect(nil)
	}
}

// hit returns the node whose circle contains the screen point, preferring
// the closest center when circles overlap.
func (c *Controller) hit(sx, sy float64) (string, bool) {
	if c.sim == nil {
		return "", false
	}
	wx, wy := c.transform.Invert(sx, sy)
	best, bestDist := "", math.Inf(1)
	for _, p := range c.sim.Positions() {
		i, ok := c.index[p.ID]
		if !ok {
			continue
		}
		d := math.Hypot(p.X-wx, p.Y-wy)
		if d <= NodeRadius(c.entities[i].ConnectionCount) && d < bestDist {
			best, bestDist = p.ID, d
		}
	}
	return best, best != ""
}
