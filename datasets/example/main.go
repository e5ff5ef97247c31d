package main

// Example command that cuts windows out of a series and converts them into
// gomlx tensors, printing the shapes a model would see.
//
// Usage:
//   go run ./datasets/example [series.nc]
//
// Without an argument a small synthetic C4 series is used.

import (
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/grid"
)

func main() {
	var (
		s   *datasets.Series
		err error
	)
	if len(os.Args) > 1 {
		s, err = datasets.LoadNetCDF(os.Args[1])
		if err != nil {
			log.Fatalf("failed to load series: %v", err)
		}
		fmt.Printf("Loaded %s\n", os.Args[1])
	} else {
		s, err = synthetic()
		if err != nil {
			log.Fatalf("failed to build synthetic series: %v", err)
		}
		fmt.Println("Using synthetic series")
	}
	fmt.Printf("  grid=%v snapshots=%d step=%v fields=%v\n", s.Topology, s.Len(), s.Step(), s.VarLevels)

	for _, layout := range []datasets.Layout{datasets.ChannelsFirst, datasets.ChannelsLast} {
		g, err := datasets.NewGenerator(s, datasets.Config{
			InputTimeSteps:  2,
			OutputTimeSteps: 1,
			AddInsolation:   true,
			Layout:          layout,
		})
		if err != nil {
			log.Fatalf("failed to create generator: %v", err)
		}
		fmt.Printf("\nLayout %v: %d samples\n", layout, g.Len())
		if g.Len() == 0 {
			continue
		}

		in, out, err := g.Window(0)
		if err != nil {
			log.Fatalf("failed to build window: %v", err)
		}
		fmt.Printf("  input  times=%v dims=%v\n", formatTimes(in.Times), in.Dims())
		fmt.Printf("  output times=%v dims=%v\n", formatTimes(out.Times), out.Dims())

		n := min(4, g.Len())
		batch := make([]*datasets.Window, 0, n)
		for i := range n {
			w, _, err := g.Window(i)
			if err != nil {
				log.Fatalf("failed to build window %d: %v", i, err)
			}
			batch = append(batch, w)
		}
		bt, err := datasets.StackTensor(batch)
		if err != nil {
			log.Fatalf("failed to stack windows: %v", err)
		}
		fmt.Printf("  batch tensor shape=%v\n", bt.Shape().Dimensions)

		ins := in.Field(in.Steps()-1, in.Channels-1, nil)
		lo, hi := ins[0], ins[0]
		for _, v := range ins {
			lo, hi = min(lo, v), max(hi, v)
		}
		fmt.Printf("  insolation range at %s: [%.3f, %.3f]\n", in.Times[in.Steps()-1].Format(time.RFC3339), lo, hi)
	}
}

func synthetic() (*datasets.Series, error) {
	topo := grid.CubeSphere(4)
	vars := []datasets.VarLevel{{Variable: "z", Level: 500}, {Variable: "t2m", Level: 0}}
	lat, _ := topo.CellCenters()
	times := make([]time.Time, 6)
	data := make([]float32, 0, len(times)*len(vars)*topo.Cells())
	for i := range times {
		times[i] = time.Date(2020, 1, 1, 6*i, 0, 0, 0, time.UTC)
		for v := range vars {
			for cell := range topo.Cells() {
				data = append(data, float32(math.Cos(lat[cell]*math.Pi/180)*float64(v+1)+0.1*float64(i)))
			}
		}
	}
	return datasets.NewSeries(topo, times, vars, data)
}

func formatTimes(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format("2006-01-02T15")
	}
	return out
}
