package services

import (
	"math"

	"copenhagenbuzz/internal/domain"
)

const earthRadiusMeters = 6371000.0

// DistanceMeters is the great-circle distance between two coordinates.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Closest returns the event nearest to (lat, lng) and its distance in meters.
// Ties keep the earlier event. ok is false when events is empty.
func Closest(events []domain.Event, lat, lng float64) (event domain.Event, meters float64, ok bool) {
	for _, e := range events {
		d := DistanceMeters(lat, lng, e.Location.Latitude, e.Location.Longitude)
		if !ok || d < meters {
			event, meters, ok = e, d, true
		}
	}
	return event, meters, ok
}
