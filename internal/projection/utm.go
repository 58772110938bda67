// Package projection converts between UTM zone 20N grid coordinates and
// WGS84 geographic coordinates. Permit records are published with projected
// easting/northing pairs; everything downstream works in lat/lon.
package projection

import (
	"math"

	"github.com/rotisserie/eris"
)

// WGS84 ellipsoid and UTM zone 20N parameters (EPSG:32620).
const (
	semiMajor          = 6378137.0
	flattening         = 1.0 / 298.257223563
	scaleFactor        = 0.9996
	falseEasting       = 500000.0
	centralMeridianDeg = -63.0 // zone 20: 6*20 - 183
)

var (
	e2  = flattening * (2 - flattening) // first eccentricity squared
	e4  = e2 * e2
	e6  = e4 * e2
	ep2 = e2 / (1 - e2) // second eccentricity squared
	e1  = (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
)

// ToLatLon converts a UTM zone 20N easting/northing pair to WGS84 latitude
// and longitude in degrees. Both inputs must be finite; callers holding
// unparsed source fields are expected to validate before calling.
func ToLatLon(easting, northing float64) (lat, lon float64, err error) {
	if !isFinite(easting) || !isFinite(northing) {
		return 0, 0, eris.Errorf("projection: non-finite coordinate pair (%v, %v)", easting, northing)
	}

	x := easting - falseEasting
	m := northing / scaleFactor

	mu := m / (semiMajor * (1 - e2/4 - 3*e4/64 - 5*e6/256))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sinPhi1 := math.Sin(phi1)
	cosPhi1 := math.Cos(phi1)
	tanPhi1 := math.Tan(phi1)

	c1 := ep2 * cosPhi1 * cosPhi1
	t1 := tanPhi1 * tanPhi1
	n1 := semiMajor / math.Sqrt(1-e2*sinPhi1*sinPhi1)
	r1 := semiMajor * (1 - e2) / math.Pow(1-e2*sinPhi1*sinPhi1, 1.5)
	d := x / (n1 * scaleFactor)

	latRad := phi1 - (n1*tanPhi1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)

	lonRad := (d -
		(1+2*t1+c1)*math.Pow(d, 3)/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cosPhi1

	lat = latRad * 180 / math.Pi
	lon = centralMeridianDeg + lonRad*180/math.Pi
	return lat, lon, nil
}

// FromLatLon converts WGS84 latitude/longitude in degrees to UTM zone 20N
// easting/northing. Used for round-trip verification of ToLatLon.
func FromLatLon(lat, lon float64) (easting, northing float64, err error) {
	if !isFinite(lat) || !isFinite(lon) {
		return 0, 0, eris.Errorf("projection: non-finite coordinate pair (%v, %v)", lat, lon)
	}

	phi := lat * math.Pi / 180
	lambda := (lon - centralMeridianDeg) * math.Pi / 180

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := semiMajor / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	a := cosPhi * lambda

	m := semiMajor * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))

	easting = falseEasting + scaleFactor*n*(a+
		(1-t+c)*math.Pow(a, 3)/6+
		(5-18*t+t*t+72*c-58*ep2)*math.Pow(a, 5)/120)

	northing = scaleFactor * (m + n*tanPhi*(a*a/2+
		(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
		(61-58*t+t*t+600*c-330*ep2)*math.Pow(a, 6)/720))

	return easting, northing, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
