package datasets

import (
	"math"
	"time"
)

// Insolation writes the normalized top-of-atmosphere insolation at time t for
// every (lat, lon) pair (degrees) into dst. Values are the cosine of the solar
// zenith angle scaled by the Earth-Sun distance factor and clipped at zero,
// so they sit in roughly [0, 1.035]. The result depends only on t and the
// coordinates.
//
// Solar declination, equation of time and eccentricity follow Spencer (1971).
func Insolation(t time.Time, lat, lon []float64, dst []float32) []float32 {
	if dst == nil {
		dst = make([]float32, len(lat))
	}
	t = t.UTC()

	hours := float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
	gamma := 2 * math.Pi / 365 * (float64(t.YearDay()-1) + (hours-12)/24)

	decl := 0.006918 - 0.399912*math.Cos(gamma) + 0.070257*math.Sin(gamma) -
		0.006758*math.Cos(2*gamma) + 0.000907*math.Sin(2*gamma) -
		0.002697*math.Cos(3*gamma) + 0.00148*math.Sin(3*gamma)

	// minutes
	eqTime := 229.18 * (0.000075 + 0.001868*math.Cos(gamma) - 0.032077*math.Sin(gamma) -
		0.014615*math.Cos(2*gamma) - 0.040849*math.Sin(2*gamma))

	e0 := 1.000110 + 0.034221*math.Cos(gamma) + 0.001280*math.Sin(gamma) +
		0.000719*math.Cos(2*gamma) + 0.000077*math.Sin(2*gamma)

	sinDecl, cosDecl := math.Sin(decl), math.Cos(decl)
	for i := range lat {
		solarMinutes := hours*60 + eqTime + 4*lon[i]
		ha := (solarMinutes/4 - 180) * math.Pi / 180
		phi := lat[i] * math.Pi / 180

		cosZ := math.Sin(phi)*sinDecl + math.Cos(phi)*cosDecl*math.Cos(ha)
		if cosZ < 0 {
			cosZ = 0
		}
		dst[i] = float32(e0 * cosZ)
	}
	return dst
}
