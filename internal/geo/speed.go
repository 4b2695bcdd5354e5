// Package geo computes ground speed from raw geolocation fixes.
package geo

import (
	"math"
	"time"
)

const earthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Fix is a timestamped geolocation sample.
type Fix struct {
	Lat float64
	Lng float64
	TS  time.Time
}

// SpeedKmh returns the average ground speed between two fixes in km/h,
// along with the distance covered in meters. Returns 0,0 when the fixes
// are not strictly ordered in time.
func SpeedKmh(prev, cur Fix) (kmh, distM float64) {
	dt := cur.TS.Sub(prev.TS)
	if dt <= 0 {
		return 0, 0
	}
	distM = HaversineMeters(prev.Lat, prev.Lng, cur.Lat, cur.Lng)
	mps := distM / dt.Seconds()
	return mps * 3.6, distM
}
