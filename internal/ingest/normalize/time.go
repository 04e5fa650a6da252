package normalize

import (
	"strings"
	"time"
)

// DefaultTimezone is used for restaurants without a usable timezone.
const DefaultTimezone = "America/Chicago"

// ResolveZone loads the restaurant's zone. A blank name gives fallback with a
// nil error; an unknown name gives fallback together with the load error so the
// caller can report it.
func ResolveZone(name *string, fallback *time.Location) (*time.Location, error) {
	if name == nil || strings.TrimSpace(*name) == "" {
		return fallback, nil
	}
	loc, err := time.LoadLocation(strings.TrimSpace(*name))
	if err != nil {
		return fallback, err
	}
	return loc, nil
}

// LocalSaleTime returns the wall-clock date (YYYY-MM-DD) and time (HH:MM:SS)
// of instant in loc.
func LocalSaleTime(instant time.Time, loc *time.Location) (string, string) {
	local := instant.In(loc)
	return local.Format("2006-01-02"), local.Format("15:04:05")
}
