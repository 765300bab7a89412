package geozone

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Transformer converts geographic coordinates into the planar CRS the
// boundary shapes are stored in.
type Transformer interface {
	// Transform takes a longitude/latitude pair in degrees and returns
	// projected easting/northing.
	Transform(lon, lat float64) (x, y float64)
}

// NewTransformer builds a projection from sourceCRS to targetCRS. Identity
// when the two match; otherwise the source must be geographic EPSG:4326 and
// the target one of the NAD83 UTM zones (EPSG:26901 through EPSG:26923),
// which covers every dataset shipped with the service.
func NewTransformer(sourceCRS, targetCRS string) (Transformer, error) {
	if sourceCRS == targetCRS {
		return identityTransformer{}, nil
	}
	if sourceCRS != "EPSG:4326" {
		return nil, eris.Errorf("geozone: unsupported source CRS %q", sourceCRS)
	}
	zone, err := utmZoneFor(targetCRS)
	if err != nil {
		return nil, err
	}
	return newUTMTransformer(zone), nil
}

type identityTransformer struct{}

func (identityTransformer) Transform(lon, lat float64) (float64, float64) { return lon, lat }

func utmZoneFor(crs string) (int, error) {
	code, ok := strings.CutPrefix(crs, "EPSG:")
	if !ok {
		return 0, eris.Errorf("geozone: unsupported target CRS %q", crs)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 26900 || n > 26923 {
		return 0, eris.Errorf("geozone: unsupported target CRS %q", crs)
	}
	return n - 26900, nil
}

// GRS80 ellipsoid, used by the NAD83 UTM zones.
const (
	grs80A = 6378137.0
	grs80F = 1.0 / 298.257222101

	utmScale        = 0.9996
	utmFalseEasting = 500000.0
)

// utmTransformer is the forward transverse Mercator projection (Snyder,
// series form, sub-meter over a UTM zone).
type utmTransformer struct {
	lon0 float64 // central meridian, radians
	e2   float64
	ep2  float64
	// meridional arc series coefficients
	m0, m2, m4, m6 float64
}

func newUTMTransformer(zone int) *utmTransformer {
	e2 := grs80F * (2 - grs80F)
	e4 := e2 * e2
	e6 := e4 * e2
	return &utmTransformer{
		lon0: degToRad(float64(-183 + 6*zone)),
		e2:   e2,
		ep2:  e2 / (1 - e2),
		m0:   1 - e2/4 - 3*e4/64 - 5*e6/256,
		m2:   3*e2/8 + 3*e4/32 + 45*e6/1024,
		m4:   15*e4/256 + 45*e6/1024,
		m6:   35 * e6 / 3072,
	}
}

func (t *utmTransformer) Transform(lon, lat float64) (float64, float64) {
	phi := degToRad(lat)
	lam := degToRad(lon)

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := grs80A / math.Sqrt(1-t.e2*sinPhi*sinPhi)
	tt := tanPhi * tanPhi
	c := t.ep2 * cosPhi * cosPhi
	a := (lam - t.lon0) * cosPhi

	m := grs80A * (t.m0*phi -
		t.m2*math.Sin(2*phi) +
		t.m4*math.Sin(4*phi) -
		t.m6*math.Sin(6*phi))

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	x := utmFalseEasting + utmScale*n*(a+
		(1-tt+c)*a3/6+
		(5-18*tt+tt*tt+72*c-58*t.ep2)*a5/120)
	y := utmScale * (m + n*tanPhi*(a2/2+
		(5-tt+9*c+4*c*c)*a4/24+
		(61-58*tt+tt*tt+600*c-330*t.ep2)*a6/720))

	return x, y
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
