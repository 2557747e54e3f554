package layout

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
	"gonum.org/v1/gonum/spatial/r2"
)

// Levels assigns every node a depth below the root of its connected
// component and returns, per component, the node indices of each level in
// display order. Roots are the highest degree nodes, ties broken by
// connection count and then id.
func (s *Simulation) Levels() [][][]int {
	g := simple.NewUndirectedGraph()
	for i := range s.nodes {
		g.AddNode(simple.Node(int64(i)))
	}
	for _, l := range s.links {
		if g.HasEdgeBetween(int64(l.source), int64(l.target)) {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(int64(l.source)), T: simple.Node(int64(l.target))})
	}

	degree := make([]int, len(s.nodes))
	for i := range s.nodes {
		degree[i] = g.From(int64(i)).Len()
	}
	roots := make([]int, len(s.nodes))
	for i := range roots {
		roots[i] = i
	}
	slices.SortStableFunc(roots, func(a, b int) int {
		if c := cmp.Compare(degree[b], degree[a]); c != 0 {
			return c
		}
		if c := cmp.Compare(s.nodes[b].connectionCount, s.nodes[a].connectionCount); c != 0 {
			return c
		}
		return cmp.Compare(s.nodes[a].id, s.nodes[b].id)
	})

	var components [][][]int
	var bfs traverse.BreadthFirst
	for _, root := range roots {
		if bfs.Visited(simple.Node(int64(root))) {
			continue
		}
		var levels [][]int
		bfs.Walk(g, simple.Node(int64(root)), func(n graph.Node, depth int) bool {
			for len(levels) <= depth {
				levels = append(levels, nil)
			}
			levels[depth] = append(levels[depth], int(n.ID()))
			return false
		})
		// BFS visits neighbors in map order; start from entity order so the
		// barycenter sweeps are deterministic.
		for _, level := range levels {
			slices.Sort(level)
		}
		orderLevels(g, levels)
		components = append(components, levels)
	}
	return components
}

// orderLevels reduces edge crossings with two rounds of barycenter sweeps,
// down then up.
func orderLevels(g graph.Undirected, levels [][]int) {
	for round := 0; round < 2; round++ {
		for d := 1; d < len(levels); d++ {
			sortByBarycenter(g, levels[d], levels[d-1])
		}
		for d := len(levels) - 2; d >= 0; d-- {
			sortByBarycenter(g, levels[d], levels[d+1])
		}
	}
}

func sortByBarycenter(g graph.Undirected, level, fixed []int) {
	pos := make(map[int64]int, len(fixed))
	for i, id := range fixed {
		pos[int64(id)] = i
	}
	center := make(map[int]float64, len(level))
	for i, id := range level {
		var sum, count float64
		to := g.From(int64(id))
		for to.Next() {
			if p, ok := pos[to.Node().ID()]; ok {
				sum += float64(p)
				count++
			}
		}
		if count == 0 {
			center[id] = float64(i)
			continue
		}
		center[id] = sum / count
	}
	slices.SortStableFunc(level, func(a, b int) int {
		return cmp.Compare(center[a], center[b])
	})
}

// hierarchyTargets places components side by side and levels on horizontal
// bands, then centers the whole drawing on the canvas.
func (s *Simulation) hierarchyTargets() []r2.Vec {
	targets := make([]r2.Vec, len(s.nodes))
	if len(s.nodes) == 0 {
		return targets
	}

	gap := s.cfg.NodeGap
	left := 0.0
	for _, levels := range s.Levels() {
		widest := 0
		for _, level := range levels {
			widest = max(widest, len(level))
		}
		width := float64(widest) * gap
		for d, level := range levels {
			offset := left + (width-float64(len(level))*gap)/2
			for i, id := range level {
				targets[id] = r2.Vec{
					X: offset + (float64(i)+0.5)*gap,
					Y: float64(d) * s.cfg.LevelGap,
				}
			}
		}
		left += width + gap
	}

	lo, hi := targets[0], targets[0]
	for _, t := range targets[1:] {
		lo = r2.Vec{X: min(lo.X, t.X), Y: min(lo.Y, t.Y)}
		hi = r2.Vec{X: max(hi.X, t.X), Y: max(hi.Y, t.Y)}
	}
	mid := r2.Scale(0.5, r2.Add(lo, hi))
	shift := r2.Sub(r2.Vec{X: s.cfg.Width / 2, Y: s.cfg.Height / 2}, mid)
	for i := range targets {
		targets[i] = r2.Add(targets[i], shift)
	}
	return targets
}

// Targets returns the hierarchical target of each node in entity order, or
// nil in force mode.
func (s *Simulation) Targets() []Position {
	if s.targets == nil {
		return nil
	}
	out := make([]Position, len(s.targets))
	for i, t := range s.targets {
		out[i] = Position{ID: s.nodes[i].id, X: t.X, Y: t.Y}
	}
	return out
}
