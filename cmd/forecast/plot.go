package main

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
)

// plotLeadMeans writes one line per varlev of the grid-mean value against
// lead time for the first initialization.
func plotLeadMeans(outDir string, l *forecast.Labeled) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Grid mean by lead time, init %s", l.InitTimes[0].Format("2006-01-02T15"))
	p.X.Label.Text = "lead (h)"
	p.Y.Label.Text = "mean"

	means := make([]float64, l.Topology.Cells())
	for v, vl := range l.VarLevels {
		xys := make(plotter.XYs, len(l.LeadTimes))
		for k, lead := range l.LeadTimes {
			for i, x := range l.Field(k, 0, v) {
				means[i] = float64(x)
			}
			xys[k] = plotter.XY{X: lead.Hours(), Y: floats.Sum(means) / float64(len(means))}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(v)
		line.Width = vg.Points(1.2)
		p.Add(line)
		p.Legend.Add(vl.String(), line)
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	return p.Save(8*vg.Inch, 5*vg.Inch, filepath.Join(outDir, "lead_means.png"))
}

// plotField writes a heat map of one (lead, init, varlev) field. Cubed-sphere
// faces are drawn side by side.
func plotField(outDir string, l *forecast.Labeled, lead, init, v int) error {
	g := newFieldGrid(l.Topology, l.Field(lead, init, v))
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s at +%v from %s", l.VarLevels[v], l.LeadTimes[lead], l.InitTimes[init].Format("2006-01-02T15"))
	if l.Topology.Kind == grid.KindLatLon {
		p.X.Label.Text = "longitude"
		p.Y.Label.Text = "latitude"
	} else {
		p.X.Label.Text = "face column"
		p.Y.Label.Text = "row"
	}
	p.Add(plotter.NewHeatMap(g, palette.Heat(64, 1)))

	name := fmt.Sprintf("field_%s_%s.png", l.Topology.Kind, l.VarLevels[v].Variable)
	return p.Save(10*vg.Inch, 5*vg.Inch, filepath.Join(outDir, name))
}

// fieldGrid adapts a flat field to plotter.GridXYZ. Rows run south to north.
type fieldGrid struct {
	topo  grid.Topology
	field []float32
	lat   []float64
	lon   []float64
	cols  int
	rows  int
}

func newFieldGrid(topo grid.Topology, field []float32) *fieldGrid {
	g := &fieldGrid{topo: topo, field: field}
	if topo.Kind == grid.KindLatLon {
		g.lat, g.lon = topo.Latitudes(), topo.Longitudes()
		g.cols, g.rows = topo.NLon, topo.NLat
	} else {
		g.cols, g.rows = grid.Faces*topo.N, topo.N
	}
	return g
}

func (g *fieldGrid) Dims() (c, r int) { return g.cols, g.rows }

func (g *fieldGrid) Z(c, r int) float64 {
	if g.topo.Kind == grid.KindLatLon {
		return float64(g.field[(g.rows-1-r)*g.cols+c])
	}
	n := g.topo.N
	face, col := c/n, c%n
	row := n - 1 - r
	return float64(g.field[face*n*n+row*n+col])
}

func (g *fieldGrid) X(c int) float64 {
	if g.lon != nil {
		return g.lon[c]
	}
	return float64(c)
}

func (g *fieldGrid) Y(r int) float64 {
	if g.lat != nil {
		return g.lat[g.rows-1-r]
	}
	return float64(r)
}
