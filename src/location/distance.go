package location

import "math"

// earthRadius is the mean radius of the WGS-84 ellipsoid in meters.
const earthRadius = 6371008.8

// Distance returns the great-circle distance between two fixes in meters.
func Distance(a, b Fix) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Overlaps reports whether two fixes are close enough to share a reverse
// geocode result: their distance is within the smaller of the two
// accuracy radii.
func Overlaps(a, b Fix) bool {
	return Distance(a, b) <= math.Min(a.Accuracy, b.Accuracy)
}
