package utils

const (
	// MetersPerMile is the international mile.
	MetersPerMile = 1609.34

	secondsPerHour = 3600.0
)

// MetersPerSecondToMPH converts a GTFS-RT speed to miles per hour.
func MetersPerSecondToMPH(mps float64) float64 {
	return mps * secondsPerHour / MetersPerMile
}
