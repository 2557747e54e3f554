// Package viewer runs interactive graph viewing sessions.
//
// Every Session owns one goroutine. Filter recomputation, simulation ticks,
// pointer handling and scene building all happen on it; callers submit
// commands and wait for their result, so no state is ever written from two
// goroutines.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/graph/canvas"
	"github.com/knowledgebase/netgraph/pkg/graph/controls"
	"github.com/knowledgebase/netgraph/pkg/graph/details"
	"github.com/knowledgebase/netgraph/pkg/graph/filter"
	"github.com/knowledgebase/netgraph/pkg/graph/layout"
	"github.com/knowledgebase/netgraph/pkg/logger"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionNotFound = errors.New("session not found")
	ErrNoSelection     = errors.New("no entity selected")
	ErrNotVisible      = errors.New("entity not visible")
	ErrUnknownEvent    = errors.New("unknown pointer event")
	ErrNoDataset       = errors.New("no dataset loaded")
)

type Options struct {
	Width         float64
	Height        float64
	FrameInterval time.Duration
	IdleTimeout   time.Duration
	Seed          uint64
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 960
	}
	if o.Height <= 0 {
		o.Height = 640
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = 16 * time.Millisecond
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	return o
}

// Frame is one published scene. Seq increases by one per publication.
type Frame struct {
	Seq   uint64       `json:"seq"`
	Scene canvas.Scene `json:"scene"`
}

// PointerEvent is a raw pointer event in screen coordinates.
type PointerEvent struct {
	Kind  string  `json:"event" validate:"required,oneof=down move up leave click wheel"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Delta float64 `json:"delta"`
}

type Session struct {
	id   string
	data *common.Dataset
	opts Options

	cmds    chan func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	lastActive atomic.Int64

	// loop-owned
	bar       *controls.Bar
	view      *canvas.Controller
	sim       *layout.Simulation
	layoutCfg layout.Config
	visible   filter.Result
	selected  *common.Entity
	seq       uint64

	subsMu  sync.Mutex
	subs    map[int]chan Frame
	nextSub int
	closed  bool
}

// NewSession prepares a session over data. Nothing runs until Run is called.
func NewSession(id string, data *common.Dataset, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		id:      id,
		data:    data,
		opts:    opts,
		cmds:    make(chan func()),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		subs:    make(map[int]chan Frame),
	}
	s.layoutCfg = layout.DefaultConfig(opts.Width, opts.Height)
	s.layoutCfg.Seed = opts.Seed
	s.view = canvas.New(opts.Width, opts.Height, s.onSelect)
	s.bar = controls.New(filter.RelationshipTypes(data.Relationships), s.view)
	s.refilter()
	s.touch()
	return s
}

func (s *Session) ID() string { return s.id }

// Dataset returns the snapshot the session was created with.
func (s *Session) Dataset() *common.Dataset { return s.data }

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive is the time of the most recent command.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Run drives the session until ctx is cancelled or Close is called. On exit
// the simulation is stopped, the tooltip dropped and all subscriptions closed.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.FrameInterval)
	defer ticker.Stop()
	defer s.teardown()

	logger.Debug("[Viewer] session loop started", "session_id", s.id, "frame_interval", s.opts.FrameInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case fn := <-s.cmds:
			fn()
		case <-ticker.C:
			if s.sim.Tick() {
				s.publish()
			}
		}
	}
}

// Close stops the loop. It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

// Stopped is closed once the loop has exited and cleaned up.
func (s *Session) Stopped() <-chan struct{} { return s.stopped }

func (s *Session) teardown() {
	s.once.Do(func() { close(s.done) })
	if s.sim != nil {
		s.sim.Stop()
	}
	s.view.Leave()

	s.subsMu.Lock()
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subsMu.Unlock()

	close(s.stopped)
	logger.Debug("[Viewer] session loop stopped", "session_id", s.id, "frames", s.seq)
}

// Subscribe returns a channel of frames. The channel holds at most one frame;
// a slow reader skips to the latest frame and never sees an older one after a
// newer one. The returned func cancels the subscription.
func (s *Session) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, 1)

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

func (s *Session) publish() {
	s.seq++
	f := Frame{Seq: s.seq, Scene: s.view.Scene()}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- f:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f:
		default:
		}
	}
}

// call runs fn on the loop goroutine and waits for its result.
func call[T any](ctx context.Context, s *Session, fn func() (T, error)) (T, error) {
	var zero T
	type result struct {
		v   T
		err error
	}
	res := make(chan result, 1)

	select {
	case s.cmds <- func() {
		v, err := fn()
		res <- result{v, err}
	}:
	case <-s.done:
		return zero, ErrSessionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	s.touch()

	select {
	case r := <-res:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Session) onSelect(e *common.Entity) {
	s.selected = e
}

// refilter recomputes the visible set. When it changed, the old simulation
// is stopped and a new one seeded with the surviving positions replaces it.
func (s *Session) refilter() {
	result := filter.Apply(s.data.Entities, s.data.Relationships, s.bar.FilterState())
	if s.sim != nil && sameVisible(s.visible, result) {
		return
	}

	var prev []layout.Position
	if s.sim != nil {
		prev = s.sim.Positions()
		s.sim.Stop()
	}
	s.sim = layout.New(result.Entities, result.Relationships, s.layoutCfg,
		layout.WithPositions(prev),
		layout.WithMode(s.bar.Layout()))
	s.visible = result
	s.view.Rebuild(result.Entities, result.Relationships, s.sim)
}

func sameVisible(a, b filter.Result) bool {
	if len(a.Entities) != len(b.Entities) || len(a.Relationships) != len(b.Relationships) {
		return false
	}
	for i := range a.Entities {
		if a.Entities[i].ID != b.Entities[i].ID {
			return false
		}
	}
	for i := range a.Relationships {
		ra, rb := a.Relationships[i], b.Relationships[i]
		if ra.Source != rb.Source || ra.Target != rb.Target || ra.Type != rb.Type {
			return false
		}
	}
	return true
}

func (s *Session) Scene(ctx context.Context) (canvas.Scene, error) {
	return call(ctx, s, func() (canvas.Scene, error) {
		return s.view.Scene(), nil
	})
}

func (s *Session) Controls(ctx context.Context) (controls.Snapshot, error) {
	return call(ctx, s, func() (controls.Snapshot, error) {
		return s.bar.Snapshot(), nil
	})
}

// Visible returns the current visible entities and relationships.
func (s *Session) Visible(ctx context.Context) (filter.Result, error) {
	return call(ctx, s, func() (filter.Result, error) {
		return s.visible, nil
	})
}

func (s *Session) SetSearch(ctx context.Context, term string) (controls.Snapshot, error) {
	return call(ctx, s, func() (controls.Snapshot, error) {
		if s.bar.SetSearchTerm(term) {
			s.refilter()
			s.publish()
		}
		return s.bar.Snapshot(), nil
	})
}

func (s *Session) ToggleEntityType(ctx context.Context, t string) (controls.Snapshot, error) {
	return call(ctx, s, func() (controls.Snapshot, error) {
		if _, err := s.bar.ToggleEntityType(t); err != nil {
			return controls.Snapshot{}, err
		}
		s.refilter()
		s.publish()
		return s.bar.Snapshot(), nil
	})
}

func (s *Session) ToggleRelationshipType(ctx context.Context, t string) (controls.Snapshot, error) {
	return call(ctx, s, func() (controls.Snapshot, error) {
		if _, err := s.bar.ToggleRelationshipType(t); err != nil {
			return controls.Snapshot{}, err
		}
		s.refilter()
		s.publish()
		return s.bar.Snapshot(), nil
	})
}

// SetLayout switches the layout mode. The simulation keeps its positions and
// is reheated toward the new arrangement; the rendering is rebuilt.
func (s *Session) SetLayout(ctx context.Context, mode string) (controls.Snapshot, error) {
	return call(ctx, s, func() (controls.Snapshot, error) {
		changed, err := s.bar.SetLayout(mode)
		if err != nil {
			return controls.Snapshot{}, err
		}
		if changed {
			s.sim.SetMode(s.bar.Layout())
			s.view.Rebuild(s.visible.Entities, s.visible.Relationships, s.sim)
			s.publish()
		}
		return s.bar.Snapshot(), nil
	})
}

func (s *Session) Zoom(ctx context.Context, direction string) (canvas.Transform, error) {
	return call(ctx, s, func() (canvas.Transform, error) {
		if err := s.bar.Zoom(direction); err != nil {
			return canvas.Transform{}, err
		}
		s.publish()
		return s.view.Transform(), nil
	})
}

// Pointer routes a raw pointer event to the canvas.
func (s *Session) Pointer(ctx context.Context, ev PointerEvent) (canvas.Result, error) {
	return call(ctx, s, func() (canvas.Result, error) {
		var r canvas.Result
		switch ev.Kind {
		case "down":
			r = s.view.PointerDown(ev.X, ev.Y)
		case "move":
			r = s.view.PointerMove(ev.X, ev.Y)
		case "up":
			r = s.view.PointerUp(ev.X, ev.Y)
		case "click":
			r = s.view.Click(ev.X, ev.Y)
		case "leave":
			s.view.Leave()
			r = canvas.Result{Action: canvas.ActionNone}
		case "wheel":
			s.view.ZoomAt(ev.X, ev.Y, ev.Delta)
			r = canvas.Result{Action: canvas.ActionNone}
		default:
			return canvas.Result{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
		}
		s.publish()
		return r, nil
	})
}

// Select selects a visible entity and returns its details.
func (s *Session) Select(ctx context.Context, id string) (details.Details, error) {
	return call(ctx, s, func() (details.Details, error) {
		if !s.view.Select(id) {
			return details.Details{}, ErrNotVisible
		}
		s.publish()
		return s.resolve(), nil
	})
}

func (s *Session) ClearSelection(ctx context.Context) error {
	_, err := call(ctx, s, func() (struct{}, error) {
		s.view.ClearSelection()
		s.publish()
		return struct{}{}, nil
	})
	return err
}

// Details resolves the connections of the selected entity against the
// current visible set.
func (s *Session) Details(ctx context.Context) (details.Details, error) {
	return call(ctx, s, func() (details.Details, error) {
		if s.selected == nil {
			return details.Details{}, ErrNoSelection
		}
		return s.resolve(), nil
	})
}

func (s *Session) resolve() details.Details {
	return details.Resolve(*s.selected, s.visible.Relationships, s.visible.Entities)
}
