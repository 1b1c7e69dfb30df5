package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Edmonton")
	if err != nil {
		panic(err)
	}
}

// the registry stamps registration dates in Alberta local time, so
// period comparisons and run timestamps happen in the same zone no
// matter where the process runs
func Now() time.Time {
	return time.Now().In(Location)
}

// Day truncates to midnight in the registry's zone.
func Day(t time.Time) time.Time {
	t = t.In(Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)
}
