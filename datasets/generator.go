package datasets

import (
	"fmt"
	"time"

	"github.com/Noofbiz/gridcast/grid"
)

// Config controls how a Generator cuts windows out of a Series.
type Config struct {
	// Selection restricts and orders the fields put in a window. Empty means
	// every field of the series.
	Selection []VarLevel

	// InputTimeSteps (Ti) and OutputTimeSteps (To) size the windows.
	InputTimeSteps  int
	OutputTimeSteps int

	// AddInsolation appends one insolation channel to every input step.
	AddInsolation bool

	Layout Layout
}

// Generator is the WindowedSeriesGenerator. It reads its Series but never
// modifies it, so one series may back several generators.
type Generator struct {
	series *Series
	cfg    Config

	// vars maps window channel -> series varlev index
	vars []int
	sel  []VarLevel

	// cell centres, only populated when insolation is enabled
	lat, lon []float64
}

// NewGenerator validates cfg against s.
func NewGenerator(s *Series, cfg Config) (*Generator, error) {
	if s == nil {
		return nil, fmt.Errorf("series cannot be nil")
	}
	if cfg.InputTimeSteps < 1 {
		return nil, fmt.Errorf("input time steps must be >= 1, got %d", cfg.InputTimeSteps)
	}
	if cfg.OutputTimeSteps < 1 {
		return nil, fmt.Errorf("output time steps must be >= 1, got %d", cfg.OutputTimeSteps)
	}
	if cfg.Layout != ChannelsFirst && cfg.Layout != ChannelsLast {
		return nil, fmt.Errorf("invalid layout %v", cfg.Layout)
	}
	vars, err := s.Select(cfg.Selection)
	if err != nil {
		return nil, err
	}

	g := &Generator{series: s, cfg: cfg, vars: vars}
	g.sel = make([]VarLevel, len(vars))
	for i, v := range vars {
		g.sel[i] = s.VarLevels[v]
	}
	if cfg.AddInsolation {
		if s.Len() > 1 && s.Step() == 0 {
			return nil, fmt.Errorf("insolation requires a time step")
		}
		g.lat, g.lon = s.Topology.CellCenters()
	}
	return g, nil
}

// Config returns the generator configuration.
func (g *Generator) Config() Config { return g.cfg }

// Series returns the backing series.
func (g *Generator) Series() *Series { return g.series }

// Topology returns the grid of every produced window.
func (g *Generator) Topology() grid.Topology { return g.series.Topology }

// Selection returns the selected fields in channel order.
func (g *Generator) Selection() []VarLevel { return append([]VarLevel(nil), g.sel...) }

// Step returns the time between consecutive snapshots.
func (g *Generator) Step() time.Duration { return g.series.Step() }

// OutputChannels is the number of dynamical channels per step.
func (g *Generator) OutputChannels() int { return len(g.vars) }

// InputChannels is the number of channels per input step, including
// insolation.
func (g *Generator) InputChannels() int {
	if g.cfg.AddInsolation {
		return len(g.vars) + 1
	}
	return len(g.vars)
}

// Len returns the number of samples that have both a full input and a full
// output window.
func (g *Generator) Len() int {
	n := g.series.Len() - g.cfg.InputTimeSteps - g.cfg.OutputTimeSteps + 1
	if n < 0 {
		return 0
	}
	return n
}

// Window returns the pair for sample s: input spans snapshots [s, s+Ti) and
// output spans [s+Ti, s+Ti+To).
func (g *Generator) Window(s int) (in, out *Window, err error) {
	if s < 0 || s >= g.Len() {
		return nil, nil, fmt.Errorf("%w: sample %d not in [0, %d)", ErrIndexOutOfRange, s, g.Len())
	}
	ti := g.cfg.InputTimeSteps
	in = g.window(s, ti, g.cfg.AddInsolation)
	out = g.window(s+ti, g.cfg.OutputTimeSteps, false)
	return in, out, nil
}

// InputWindow returns the Ti snapshots ending at (and including) the
// initialization index init. No output data is needed, so any init inside the
// series with enough history is valid.
func (g *Generator) InputWindow(init int) (*Window, error) {
	ti := g.cfg.InputTimeSteps
	if init >= g.series.Len() {
		return nil, fmt.Errorf("%w: initialization %d beyond series of length %d", ErrIndexOutOfRange, init, g.series.Len())
	}
	if init-ti+1 < 0 {
		return nil, &InsufficientHistoryError{Init: init, Need: ti}
	}
	return g.window(init-ti+1, ti, g.cfg.AddInsolation), nil
}

// CheckHistory reports whether init has a full input window without building
// it.
func (g *Generator) CheckHistory(init int) error {
	if init >= g.series.Len() {
		return fmt.Errorf("%w: initialization %d beyond series of length %d", ErrIndexOutOfRange, init, g.series.Len())
	}
	if init-g.cfg.InputTimeSteps+1 < 0 {
		return &InsufficientHistoryError{Init: init, Need: g.cfg.InputTimeSteps}
	}
	return nil
}

// TimeAt returns the timestamp of snapshot i.
func (g *Generator) TimeAt(i int) (time.Time, error) {
	if i < 0 || i >= g.series.Len() {
		return time.Time{}, fmt.Errorf("%w: snapshot %d", ErrIndexOutOfRange, i)
	}
	return g.series.Times[i], nil
}

// Insolation computes the insolation channel for timestamp t on the series
// grid.
func (g *Generator) Insolation(t time.Time) []float32 {
	lat, lon := g.lat, g.lon
	if lat == nil {
		lat, lon = g.series.Topology.CellCenters()
	}
	return Insolation(t, lat, lon, nil)
}

// FutureTimes returns the n timestamps following the last step of w.
func (g *Generator) FutureTimes(w *Window, n int) []time.Time {
	last := w.Times[len(w.Times)-1]
	times := make([]time.Time, n)
	for i := range times {
		times[i] = last.Add(time.Duration(i+1) * g.series.Step())
	}
	return times
}

// Slide builds the next input window from the current one and a prediction
// window holding output channels only. The oldest steps are dropped, the
// predicted steps are appended and stamped with the following timestamps,
// and insolation is recomputed for those new timestamps.
func (g *Generator) Slide(in, pred *Window) (*Window, error) {
	ti := g.cfg.InputTimeSteps
	if err := grid.CheckDim("input window steps", ti, in.Steps()); err != nil {
		return nil, err
	}
	if err := grid.CheckDim("input window channels", g.InputChannels(), in.Channels); err != nil {
		return nil, err
	}
	if err := grid.CheckDim("prediction channels", g.OutputChannels(), pred.Channels); err != nil {
		return nil, err
	}
	if pred.Steps() == 0 {
		return nil, fmt.Errorf("prediction window has no steps")
	}

	predTimes := g.FutureTimes(in, pred.Steps())

	// Steps kept from the current input, then steps taken from the prediction.
	keep := max(ti-pred.Steps(), 0)
	fromPred := ti - keep
	predOff := pred.Steps() - fromPred

	times := make([]time.Time, 0, ti)
	times = append(times, in.Times[ti-keep:]...)
	times = append(times, predTimes[predOff:]...)

	next := NewWindow(times, g.InputChannels(), in.Topology, g.cfg.Layout)
	buf := make([]float32, in.Cells())
	for t := range keep {
		for c := range in.Channels {
			next.SetField(t, c, in.Field(ti-keep+t, c, buf))
		}
	}
	for t := range fromPred {
		for c := range pred.Channels {
			next.SetField(keep+t, c, pred.Field(predOff+t, c, buf))
		}
		if g.cfg.AddInsolation {
			next.SetField(keep+t, len(g.vars), g.Insolation(times[keep+t]))
		}
	}
	return next, nil
}

// window copies steps snapshots starting at start into a new window.
func (g *Generator) window(start, steps int, insolation bool) *Window {
	channels := len(g.vars)
	if insolation {
		channels++
	}
	times := append([]time.Time(nil), g.series.Times[start:start+steps]...)
	w := NewWindow(times, channels, g.series.Topology, g.cfg.Layout)
	for t := range steps {
		for c, v := range g.vars {
			w.SetField(t, c, g.series.Field(start+t, v))
		}
		if insolation {
			w.SetField(t, len(g.vars), g.Insolation(times[t]))
		}
	}
	return w
}
