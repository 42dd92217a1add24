package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
}

// force the clock into IST because the portal renders all of its
// dates in campus-local time; a server deployed in another region
// would otherwise compute the wrong "today" around midnight
func Now() time.Time {
	return time.Now().In(Location)
}

// Today returns the current date in the portal's DD-MM-YYYY form.
func Today() string {
	return Now().Format("02-01-2006")
}
