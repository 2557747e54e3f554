package layout

import (
	"math"

	"gonum.org/v1/gonum/spatial/barneshut"
	"gonum.org/v1/gonum/spatial/r2"
)

// applyLinks pulls connected nodes toward their rest length. The correction is
// split between the endpoints by degree so hubs move less than leaves.
func (s *Simulation) applyLinks() {
	for _, l := range s.links {
		src, dst := s.nodes[l.source], s.nodes[l.target]
		d := r2.Sub(r2.Add(dst.pos, dst.vel), r2.Add(src.pos, src.vel))
		if d.X == 0 {
			d.X = s.jiggle()
		}
		if d.Y == 0 {
			d.Y = s.jiggle()
		}
		length := r2.Norm(d)
		k := (length - l.distance) / length * s.alpha * l.strength
		d = r2.Scale(k, d)
		dst.vel = r2.Sub(dst.vel, r2.Scale(l.bias, d))
		src.vel = r2.Add(src.vel, r2.Scale(1-l.bias, d))
	}
}

// applyCharge applies pairwise repulsion, exact for small graphs and through a
// Barnes-Hut quadtree above the configured threshold.
func (s *Simulation) applyCharge() {
	if len(s.nodes) < 2 {
		return
	}
	if len(s.nodes) > s.cfg.BarnesHutThreshold {
		if s.applyChargeApprox() {
			return
		}
	}
	s.applyChargeExact()
}

func (s *Simulation) chargeOn(v r2.Vec, mass float64) r2.Vec {
	d2 := r2.Norm2(v)
	if d2 == 0 {
		return r2.Vec{}
	}
	dmin2 := s.cfg.DistanceMin * s.cfg.DistanceMin
	if d2 < dmin2 {
		d2 = math.Sqrt(dmin2 * d2)
	}
	return r2.Scale(s.cfg.Charge*s.alpha*mass/d2, v)
}

func (s *Simulation) applyChargeExact() {
	for i, a := range s.nodes {
		var f r2.Vec
		for j, b := range s.nodes {
			if i == j {
				continue
			}
			v := r2.Sub(b.pos, a.pos)
			if v.X == 0 && v.Y == 0 {
				v = r2.Vec{X: s.jiggle(), Y: s.jiggle()}
			}
			f = r2.Add(f, s.chargeOn(v, b.Mass()))
		}
		a.vel = r2.Add(a.vel, f)
	}
}

// applyChargeApprox reports false when the quadtree cannot be built, leaving
// the exact sum to the caller.
func (s *Simulation) applyChargeApprox() bool {
	s.separateCoincident()

	particles := make([]barneshut.Particle2, len(s.nodes))
	for i, n := range s.nodes {
		particles[i] = n
	}
	plane, err := barneshut.NewPlane(particles)
	if err != nil {
		return false
	}

	force := func(_, _ barneshut.Particle2, _, m2 float64, v r2.Vec) r2.Vec {
		return s.chargeOn(v, m2)
	}
	forces := make([]r2.Vec, len(s.nodes))
	for i, n := range s.nodes {
		forces[i] = plane.ForceOn(n, s.cfg.Theta, force)
	}
	for i, n := range s.nodes {
		n.vel = r2.Add(n.vel, forces[i])
	}
	return true
}

// separateCoincident nudges nodes that share exact coordinates, which a
// quadtree cannot tell apart.
func (s *Simulation) separateCoincident() {
	seen := make(map[r2.Vec]struct{}, len(s.nodes))
	for _, n := range s.nodes {
		for {
			if _, dup := seen[n.pos]; !dup {
				break
			}
			n.pos = r2.Add(n.pos, r2.Vec{X: s.jiggle(), Y: s.jiggle()})
		}
		seen[n.pos] = struct{}{}
	}
}

// applyCenter translates all nodes so their mean sits on the canvas center.
// It moves positions directly and leaves velocities alone.
func (s *Simulation) applyCenter() {
	if len(s.nodes) == 0 {
		return
	}
	var sum r2.Vec
	for _, n := range s.nodes {
		sum = r2.Add(sum, n.pos)
	}
	mean := r2.Scale(1/float64(len(s.nodes)), sum)
	center := r2.Vec{X: s.cfg.Width / 2, Y: s.cfg.Height / 2}
	shift := r2.Scale(s.cfg.CenterStrength, r2.Sub(mean, center))
	for _, n := range s.nodes {
		n.pos = r2.Sub(n.pos, shift)
	}
}

// applyCollide pushes apart nodes whose collision circles overlap, weighting
// the push by the other node's area.
func (s *Simulation) applyCollide() {
	for i := 0; i < len(s.nodes); i++ {
		a := s.nodes[i]
		ri := a.radius
		ri2 := ri * ri
		for j := i + 1; j < len(s.nodes); j++ {
			b := s.nodes[j]
			rj := b.radius
			r := ri + rj
			d := r2.Sub(r2.Add(a.pos, a.vel), r2.Add(b.pos, b.vel))
			l := r2.Norm2(d)
			if l >= r*r {
				continue
			}
			if d.X == 0 {
				d.X = s.jiggle()
				l += d.X * d.X
			}
			if d.Y == 0 {
				d.Y = s.jiggle()
				l += d.Y * d.Y
			}
			l = math.Sqrt(l)
			d = r2.Scale((r-l)/l, d)
			rj2 := rj * rj
			w := rj2 / (ri2 + rj2)
			a.vel = r2.Add(a.vel, r2.Scale(w, d))
			b.vel = r2.Sub(b.vel, r2.Scale(1-w, d))
		}
	}
}

// applyPosition accelerates every node toward its hierarchy target.
func (s *Simulation) applyPosition() {
	if len(s.targets) != len(s.nodes) {
		return
	}
	k := s.cfg.HierarchyStrength * s.alpha
	for i, n := range s.nodes {
		n.vel = r2.Add(n.vel, r2.Scale(k, r2.Sub(s.targets[i], n.pos)))
	}
}
