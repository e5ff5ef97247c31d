// Package grid describes the spatial topologies a gridded time series can live
// on: the equiangular cubed sphere (6 faces of N×N cells) and the regular
// latitude-longitude grid.
//
// Cells are always addressed by a flat index. For the cubed sphere the flat
// index is face*N*N + row*N + col, which is also the "ncol" ordering used by
// the remap weights. For lat/lon it is lat*NLon + lon.
package grid

import (
	"fmt"
	"math"
)

// Kind identifies a grid family.
type Kind int

const (
	KindCubeSphere Kind = iota
	KindLatLon
)

func (k Kind) String() string {
	switch k {
	case KindCubeSphere:
		return "cubesphere"
	case KindLatLon:
		return "latlon"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Faces is the number of faces of a cubed sphere.
const Faces = 6

// Spatial dimension names, in storage order.
var (
	CubeSphereDims = []string{"face", "height", "width"}
	LatLonDims     = []string{"lat", "lon"}
)

// Topology is a fixed grid geometry. The zero value is not usable; build one
// with CubeSphere or LatLon.
type Topology struct {
	Kind Kind

	// N is the cubed-sphere face resolution.
	N int

	// NLat, NLon size the regular grid.
	NLat int
	NLon int
}

// CubeSphere returns a cubed-sphere topology with n×n cells per face.
func CubeSphere(n int) Topology {
	return Topology{Kind: KindCubeSphere, N: n}
}

// LatLon returns a regular grid with nlat rows and nlon columns.
func LatLon(nlat, nlon int) Topology {
	return Topology{Kind: KindLatLon, NLat: nlat, NLon: nlon}
}

// Validate reports whether the topology has positive extents.
func (t Topology) Validate() error {
	switch t.Kind {
	case KindCubeSphere:
		if t.N <= 0 {
			return fmt.Errorf("cubed sphere resolution must be > 0, got %d", t.N)
		}
	case KindLatLon:
		if t.NLat <= 1 || t.NLon <= 0 {
			return fmt.Errorf("lat/lon grid must have nlat > 1 and nlon > 0, got %dx%d", t.NLat, t.NLon)
		}
	default:
		return fmt.Errorf("unknown grid kind %v", t.Kind)
	}
	return nil
}

// Cells returns the number of cells in the topology.
func (t Topology) Cells() int {
	switch t.Kind {
	case KindCubeSphere:
		return Faces * t.N * t.N
	case KindLatLon:
		return t.NLat * t.NLon
	}
	return 0
}

// Dims returns the spatial shape in storage order.
func (t Topology) Dims() []int {
	switch t.Kind {
	case KindCubeSphere:
		return []int{Faces, t.N, t.N}
	case KindLatLon:
		return []int{t.NLat, t.NLon}
	}
	return nil
}

// DimNames returns the spatial dimension names matching Dims.
func (t Topology) DimNames() []string {
	switch t.Kind {
	case KindCubeSphere:
		return append([]string(nil), CubeSphereDims...)
	case KindLatLon:
		return append([]string(nil), LatLonDims...)
	}
	return nil
}

// Equal reports whether two topologies describe the same grid.
func (t Topology) Equal(o Topology) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind == KindCubeSphere {
		return t.N == o.N
	}
	return t.NLat == o.NLat && t.NLon == o.NLon
}

func (t Topology) String() string {
	switch t.Kind {
	case KindCubeSphere:
		return fmt.Sprintf("C%d", t.N)
	case KindLatLon:
		return fmt.Sprintf("%dx%d", t.NLat, t.NLon)
	}
	return t.Kind.String()
}

// Latitudes returns the row latitudes of a lat/lon grid in degrees, from 90
// down to -90 inclusive.
func (t Topology) Latitudes() []float64 {
	if t.Kind != KindLatLon {
		return nil
	}
	lats := make([]float64, t.NLat)
	step := 180.0 / float64(t.NLat-1)
	for i := range lats {
		lats[i] = 90 - float64(i)*step
	}
	return lats
}

// Longitudes returns the column longitudes of a lat/lon grid in degrees,
// starting at 0.
func (t Topology) Longitudes() []float64 {
	if t.Kind != KindLatLon {
		return nil
	}
	lons := make([]float64, t.NLon)
	step := 360.0 / float64(t.NLon)
	for i := range lons {
		lons[i] = float64(i) * step
	}
	return lons
}

// CellCenters returns the latitude and longitude (degrees, lon in [0, 360))
// of every cell in flat index order.
func (t Topology) CellCenters() (lat, lon []float64) {
	n := t.Cells()
	lat = make([]float64, n)
	lon = make([]float64, n)

	switch t.Kind {
	case KindLatLon:
		lats, lons := t.Latitudes(), t.Longitudes()
		for i, la := range lats {
			for j, lo := range lons {
				lat[i*t.NLon+j] = la
				lon[i*t.NLon+j] = lo
			}
		}
	case KindCubeSphere:
		for f := range Faces {
			for r := range t.N {
				for c := range t.N {
					la, lo := cubeSphereCenter(f, r, c, t.N)
					idx := (f*t.N+r)*t.N + c
					lat[idx] = la
					lon[idx] = lo
				}
			}
		}
	}
	return lat, lon
}

// cubeSphereCenter maps a cell of an equiangular gnomonic cube to the sphere.
// Faces 0-3 circle the equator eastward from lon 0, face 4 is the north
// cap and face 5 the south cap.
func cubeSphereCenter(face, row, col, n int) (lat, lon float64) {
	step := (math.Pi / 2) / float64(n)
	a := -math.Pi/4 + (float64(col)+0.5)*step
	b := -math.Pi/4 + (float64(row)+0.5)*step
	x, y := math.Tan(a), math.Tan(b)

	var px, py, pz float64
	switch face {
	case 0:
		px, py, pz = 1, x, y
	case 1:
		px, py, pz = -x, 1, y
	case 2:
		px, py, pz = -1, -x, y
	case 3:
		px, py, pz = x, -1, y
	case 4:
		px, py, pz = -y, x, 1
	case 5:
		px, py, pz = y, x, -1
	}

	r := math.Sqrt(px*px + py*py + pz*pz)
	lat = math.Asin(pz/r) * 180 / math.Pi
	lon = math.Atan2(py, px) * 180 / math.Pi
	if lon < 0 {
		lon += 360
	}
	return lat, lon
}
