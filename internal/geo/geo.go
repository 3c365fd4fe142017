// Package geo provides great-circle math for radius filters and
// notification enrichment.
package geo

import "math"

const earthRadiusKm = 6371

// DistanceKm returns the Haversine distance between two points in km.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// BearingDegrees returns the initial bearing from point 1 to point 2,
// normalized to [0, 360).
func BearingDegrees(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := rad(lat1)
	phi2 := rad(lat2)
	dLon := rad(lon2 - lon1)

	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) -
		math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

var compassPoints = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// CompassDirection buckets a bearing into one of the 8 compass points,
// each covering a 45-degree sector centered on its cardinal value.
func CompassDirection(bearing float64) string {
	idx := int(math.Floor(math.Mod(bearing+22.5, 360) / 45))
	return compassPoints[idx]
}

func rad(deg float64) float64 {
	return deg * math.Pi / 180
}
