package datasets

import (
	"fmt"
	"strconv"
	"strings"
)

// VarLevel names one field of a snapshot: a variable at a vertical level.
// Single-level variables use level 0.
type VarLevel struct {
	Variable string
	Level    int
}

// String formats the pair as "variable/level", e.g. "z/500".
func (v VarLevel) String() string {
	return v.Variable + "/" + strconv.Itoa(v.Level)
}

// ParseVarLevel parses "variable/level". A missing level means level 0.
func ParseVarLevel(s string) (VarLevel, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return VarLevel{}, fmt.Errorf("empty variable/level")
	}
	name, lev, found := strings.Cut(s, "/")
	if !found {
		return VarLevel{Variable: name}, nil
	}
	if name == "" {
		return VarLevel{}, fmt.Errorf("missing variable name in %q", s)
	}
	level, err := strconv.Atoi(strings.TrimSpace(lev))
	if err != nil {
		return VarLevel{}, fmt.Errorf("invalid level in %q: %w", s, err)
	}
	return VarLevel{Variable: name, Level: level}, nil
}

// ParseVarLevels parses every entry of ss.
func ParseVarLevels(ss []string) ([]VarLevel, error) {
	out := make([]VarLevel, len(ss))
	for i, s := range ss {
		vl, err := ParseVarLevel(s)
		if err != nil {
			return nil, err
		}
		out[i] = vl
	}
	return out, nil
}
