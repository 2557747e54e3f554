// Package render draws canvas scenes as standalone SVG documents.
package render

import (
	"fmt"
	"io"
	"math"

	svg "github.com/ajstarks/svgo"

	"github.com/knowledgebase/netgraph/pkg/graph/canvas"
)

const (
	arrowID      = "arrow"
	tooltipWidth = 180
	tooltipLine  = 16
)

// errWriter remembers the first write error; svgo ignores them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

func px(v float64) int {
	return int(math.Round(v))
}

// SVG writes s to w. Edges are drawn below nodes and the tooltip above
// everything, outside the zoom transform.
func SVG(w io.Writer, s canvas.Scene) error {
	ew := &errWriter{w: w}
	c := svg.New(ew)

	c.Start(px(s.Width), px(s.Height))
	c.Def()
	c.Marker(arrowID, 25, 0, 6, 6, `viewBox="0 -5 10 10"`, `orient="auto"`)
	c.Path("M0,-5L10,0L0,5", `fill="#999"`)
	c.MarkerEnd()
	c.DefEnd()
	c.Rect(0, 0, px(s.Width), px(s.Height), `fill="#fff"`)

	c.Gtransform(fmt.Sprintf("translate(%g,%g) scale(%g)", s.Transform.X, s.Transform.Y, s.Transform.K))

	c.Gid("links")
	for _, e := range s.Edges {
		c.Line(px(e.X1), px(e.Y1), px(e.X2), px(e.Y2),
			`stroke="#d0d0d0"`,
			fmt.Sprintf(`stroke-width="%g"`, e.Width),
			fmt.Sprintf(`marker-end="url(#%s)"`, arrowID))
	}
	c.Gend()

	c.Gid("link-labels")
	for _, e := range s.Edges {
		c.Text(px(e.LabelX), px(e.LabelY), e.Type, `font-size="10px"`, `fill="#666"`, `text-anchor="middle"`)
	}
	c.Gend()

	c.Gid("nodes")
	for _, n := range s.Nodes {
		c.Gtransform(fmt.Sprintf("translate(%g,%g)", n.X, n.Y))
		c.Circle(0, 0, px(n.Radius),
			fmt.Sprintf(`fill="%s"`, n.Fill),
			fmt.Sprintf(`stroke="%s"`, n.Stroke),
			fmt.Sprintf(`stroke-width="%g"`, n.StrokeWidth))
		c.Text(px(n.LabelDX), 4, n.Name, `font-size="12px"`, `fill="#333"`)
		c.Gend()
	}
	c.Gend()

	c.Gend()

	if t := s.Tooltip; t != nil {
		x, y := px(t.X), px(t.Y)
		c.Roundrect(x, y, tooltipWidth, 3*tooltipLine+8, 4, 4, `fill="#fff"`, `stroke="#ddd"`)
		c.Text(x+8, y+tooltipLine, t.Name, `font-size="12px"`, `font-weight="bold"`)
		c.Text(x+8, y+2*tooltipLine, t.Title, `font-size="12px"`, `fill="#666"`)
		c.Text(x+8, y+3*tooltipLine, fmt.Sprintf("Connections: %d", t.ConnectionCount), `font-size="12px"`, `fill="#999"`)
	}

	c.End()
	return ew.err
}
