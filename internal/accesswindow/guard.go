// Package accesswindow gates requests by wall-clock time of day.
package accesswindow

import (
	"fmt"
	"time"
)

// TimeOfDay is an offset from local midnight.
type TimeOfDay time.Duration

var layouts = []string{"15:04:05", "15:04"}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return TimeOfDay(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q: want HH:MM or HH:MM:SS", s)
}

// Of returns the time of day of t in its own location.
func Of(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

// Kitchen formats the value as "03:04 PM".
func (d TimeOfDay) Kitchen() string {
	return time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(d)).Format("03:04 PM")
}

// Config describes an access window as loaded from configuration.
type Config struct {
	Enabled  bool
	Start    string
	End      string
	Timezone string // IANA name; empty means the process local zone
}

// Guard admits requests whose wall-clock time lies in [Start, End].
// When Start is after End the window wraps past midnight.
type Guard struct {
	enabled  bool
	start    TimeOfDay
	end      TimeOfDay
	location *time.Location
}

// New validates cfg and builds a guard.
func New(cfg Config) (*Guard, error) {
	g := &Guard{enabled: cfg.Enabled, location: time.Local}
	if !cfg.Enabled {
		return g, nil
	}

	var err error
	if g.start, err = ParseTimeOfDay(cfg.Start); err != nil {
		return nil, fmt.Errorf("access window start: %w", err)
	}
	if g.end, err = ParseTimeOfDay(cfg.End); err != nil {
		return nil, fmt.Errorf("access window end: %w", err)
	}
	if cfg.Timezone != "" {
		if g.location, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("access window timezone: %w", err)
		}
	}
	return g, nil
}

// IsOpen reports whether now falls inside the window, both bounds included.
func (g *Guard) IsOpen(now time.Time) bool {
	if g == nil || !g.enabled {
		return true
	}
	tod := Of(now.In(g.location))
	if g.start <= g.end {
		return g.start <= tod && tod <= g.end
	}
	return tod >= g.start || tod <= g.end
}

// AllowedHours renders the window as "09:00 AM - 06:00 PM".
func (g *Guard) AllowedHours() string {
	if g == nil || !g.enabled {
		return "always"
	}
	return g.start.Kitchen() + " - " + g.end.Kitchen()
}

// Location returns the zone the window is evaluated in.
func (g *Guard) Location() *time.Location {
	if g == nil || g.location == nil {
		return time.Local
	}
	return g.location
}
