// Package schedule defines how periodic bot actions are expressed and turned into gocron jobs
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/marcsantiago/gocron"
)

// Definition represents when a periodic action runs
type Definition struct {
	// Interval of Unit between runs (every 1 day is an interval of 1). A weekday implicitly sets it to 1
	Interval uint64

	// Valid time units are: "weeks", "hours", "days", "minutes", "seconds"
	Unit string

	// Optional day of the week. If set, unit and interval are ignored and considered to be "every 1 week"
	Weekday string

	// Optional "at time" value (i.e. "10:30")
	AtTime string
}

// Unit values
const (
	Weeks   = "weeks"
	Hours   = "hours"
	Days    = "days"
	Minutes = "minutes"
	Seconds = "seconds"
)

var unitSetters = map[string]func(j *gocron.Job) *gocron.Job{
	Weeks:   (*gocron.Job).Weeks,
	Hours:   (*gocron.Job).Hours,
	Days:    (*gocron.Job).Days,
	Minutes: (*gocron.Job).Minutes,
	Seconds: (*gocron.Job).Seconds,
}

var weekdaySetters = map[string]func(j *gocron.Job) *gocron.Job{
	time.Monday.String():    (*gocron.Job).Monday,
	time.Tuesday.String():   (*gocron.Job).Tuesday,
	time.Wednesday.String(): (*gocron.Job).Wednesday,
	time.Thursday.String():  (*gocron.Job).Thursday,
	time.Friday.String():    (*gocron.Job).Friday,
	time.Saturday.String():  (*gocron.Job).Saturday,
	time.Sunday.String():    (*gocron.Job).Sunday,
}

// unitDurations is ordered from the largest unit to the smallest
var unitDurations = []struct {
	unit string
	d    time.Duration
}{
	{Weeks, 7 * 24 * time.Hour},
	{Days, 24 * time.Hour},
	{Hours, time.Hour},
	{Minutes, time.Minute},
	{Seconds, time.Second},
}

// Daily returns the definition of an action running once a day
func Daily() Definition {
	return Definition{Interval: 1, Unit: Days}
}

// FromDuration returns the definition using the largest unit dividing d exactly
func FromDuration(d time.Duration) (sd Definition, err error) {
	if d < time.Second {
		return sd, fmt.Errorf("Schedule period must be at least one second but was [%s]", d)
	}

	for _, ud := range unitDurations {
		if d%ud.d == 0 {
			return Definition{Interval: uint64(d / ud.d), Unit: ud.unit}, nil
		}
	}

	return sd, fmt.Errorf("Schedule period [%s] is not a whole number of seconds", d)
}

// String returns a human-friendly description of the definition
func (sd Definition) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Every ")

	switch {
	case sd.Weekday != "":
		fmt.Fprintf(&b, "%s", sd.Weekday)
	case sd.Interval == 1:
		fmt.Fprintf(&b, "%s", strings.TrimSuffix(sd.Unit, "s"))
	default:
		fmt.Fprintf(&b, "%d %s", sd.Interval, sd.Unit)
	}

	if sd.AtTime != "" {
		fmt.Fprintf(&b, " at %s", sd.AtTime)
	}

	return b.String()
}

// NewJob sets up the gocron.Job with the schedule and leaves the task undefined for the caller to set up
func NewJob(s *gocron.Scheduler, sd Definition) (j *gocron.Job, err error) {
	if setWeekday, ok := weekdaySetters[sd.Weekday]; ok {
		j = setWeekday(s.Every(1, false))
	} else if setUnit, ok := unitSetters[sd.Unit]; ok {
		j = setUnit(s.Every(sd.Interval, false))
	} else {
		return nil, fmt.Errorf("Invalid schedule [%s]: unknown unit [%s]", sd, sd.Unit)
	}

	if sd.AtTime != "" {
		j = j.At(sd.AtTime)
	}

	if j.Err() != nil {
		return nil, j.Err()
	}

	return j, nil
}
