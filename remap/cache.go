package remap

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/gridcast/store"
)

var weightsHeader = store.Header{Kind: "remap-weights", Version: 1}

// SaveWeights writes compiled weights so later runs can skip parsing the
// netCDF map file.
func SaveWeights(path string, w *Weights) error {
	return store.Write(path, weightsHeader, w)
}

// LoadWeights reads weights written by SaveWeights.
func LoadWeights(path string) (*Weights, error) {
	var w Weights
	if err := store.Read(path, weightsHeader, &w); err != nil {
		return nil, err
	}
	if err := w.Check(); err != nil {
		return nil, fmt.Errorf("corrupt weights in %s: %w", path, err)
	}
	return &w, nil
}

// LoadMap reads a map file by extension: compiled weights for store.Ext and
// an ESMF netCDF map otherwise.
func LoadMap(path string) (*Weights, error) {
	if strings.HasSuffix(filepath.Base(path), store.Ext) {
		return LoadWeights(path)
	}
	return LoadESMF(path)
}
