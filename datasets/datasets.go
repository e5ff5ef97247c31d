// Package datasets holds gridded time series in memory and cuts them into the
// fixed-shape windows a prediction model consumes.
//
// Layout and intended usage:
//
// Series
//   - An ordered, evenly spaced sequence of snapshots on one grid.Topology.
//   - Each snapshot holds one field per VarLevel (variable name + level).
//   - Values are stored in a single flat buffer indexed [time][varlev][cell],
//     so fields are returned as slices of that buffer without copying.
//
// Window
//   - T consecutive snapshots restricted to the selected VarLevels, plus an
//     optional insolation channel per input step.
//   - Flat float32 data with a Layout flag (channels first or last) and a
//     ToTensor helper producing gomlx tensors with matching dimensions.
//
// Generator
//   - Produces (input, output) window pairs for training-style sample indices
//     and input-only windows ending at an initialization index, and slides an
//     input window forward over model predictions during a rollout.
package datasets

import (
	"fmt"
	"strings"
)

// Layout selects where the channel axis sits in a window.
type Layout int

const (
	// ChannelsFirst orders window dims as [time, channel, <spatial>].
	ChannelsFirst Layout = iota
	// ChannelsLast orders window dims as [time, <spatial>, channel].
	ChannelsLast
)

func (l Layout) String() string {
	switch l {
	case ChannelsFirst:
		return "first"
	case ChannelsLast:
		return "last"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// ParseLayout accepts "first"/"channels_first" and "last"/"channels_last".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "channels_first":
		return ChannelsFirst, nil
	case "last", "channels_last":
		return ChannelsLast, nil
	}
	return 0, fmt.Errorf("unknown channel layout %q", s)
}
