// Package archive persists labeled forecasts as netCDF and as compact
// msgpack+zstd archives.
package archive

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
	"github.com/Noofbiz/gridcast/store"
)

var archiveHeader = store.Header{Kind: "forecast", Version: 1}

// Record is the on-disk form of a labeled forecast.
type Record struct {
	RunID     string    `msgpack:"run_id"`
	CreatedAt time.Time `msgpack:"created_at"`

	LeadTimes []time.Duration `msgpack:"lead_times"`
	InitTimes []time.Time     `msgpack:"init_times"`
	VarLevels []string        `msgpack:"varlevs"`

	Grid string `msgpack:"grid"`
	N    int    `msgpack:"n,omitempty"`
	NLat int    `msgpack:"nlat,omitempty"`
	NLon int    `msgpack:"nlon,omitempty"`

	Data []float32 `msgpack:"data"`
}

// NewRunID returns a fresh identifier for a forecast run.
func NewRunID() string { return uuid.NewString() }

// Save writes l to path. An empty runID gets a fresh one, which is returned.
func Save(path string, l *forecast.Labeled, runID string) (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	if runID == "" {
		runID = NewRunID()
	}
	rec := Record{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		LeadTimes: l.LeadTimes,
		InitTimes: l.InitTimes,
		VarLevels: labels(l.VarLevels),
		Grid:      l.Topology.Kind.String(),
		N:         l.Topology.N,
		NLat:      l.Topology.NLat,
		NLon:      l.Topology.NLon,
		Data:      l.Data,
	}
	if err := store.Write(path, archiveHeader, &rec); err != nil {
		return "", err
	}
	return runID, nil
}

// Load reads an archive written by Save.
func Load(path string) (*forecast.Labeled, *Record, error) {
	var rec Record
	if err := store.Read(path, archiveHeader, &rec); err != nil {
		return nil, nil, err
	}
	var topo grid.Topology
	switch rec.Grid {
	case grid.KindCubeSphere.String():
		topo = grid.CubeSphere(rec.N)
	case grid.KindLatLon.String():
		topo = grid.LatLon(rec.NLat, rec.NLon)
	default:
		return nil, nil, fmt.Errorf("%s: unknown grid %q", path, rec.Grid)
	}
	vars, err := datasets.ParseVarLevels(rec.VarLevels)
	if err != nil {
		return nil, nil, err
	}
	l := &forecast.Labeled{
		LeadTimes: rec.LeadTimes,
		InitTimes: rec.InitTimes,
		VarLevels: vars,
		Topology:  topo,
		Data:      rec.Data,
	}
	if err := l.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	rec.Data = nil
	return l, &rec, nil
}

func labels(vars []datasets.VarLevel) []string {
	out := make([]string, len(vars))
	for i, vl := range vars {
		out[i] = vl.String()
	}
	return out
}
