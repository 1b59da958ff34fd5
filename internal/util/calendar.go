package util

import (
	"fmt"
	"time"
	_ "time/tzdata" // Asia/Kolkata must resolve on hosts without zoneinfo.
)

// Clock is a wall-clock time of day such as 09:15.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("parsing clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String formats the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant at this clock time on t's calendar day in loc.
func (c Clock) On(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// TradingCalendar provides market-hours awareness for a single exchange
// session.
type TradingCalendar struct {
	Location *time.Location
	Open     Clock
	Close    Clock
}

// NewTradingCalendar creates a TradingCalendar from "HH:MM" open/close
// times and an IANA zone name.
func NewTradingCalendar(open, close, zone string) (*TradingCalendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("loading zone %q: %w", zone, err)
	}
	o, err := ParseClock(open)
	if err != nil {
		return nil, err
	}
	c, err := ParseClock(close)
	if err != nil {
		return nil, err
	}
	return &TradingCalendar{Location: loc, Open: o, Close: c}, nil
}

// OpenOn returns the session open on t's day.
func (tc *TradingCalendar) OpenOn(t time.Time) time.Time {
	return tc.Open.On(t, tc.Location)
}

// CloseOn returns the session close on t's day.
func (tc *TradingCalendar) CloseOn(t time.Time) time.Time {
	return tc.Close.On(t, tc.Location)
}

// IsMarketOpen reports whether t falls inside [open, close] on its day.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	return !t.Before(tc.OpenOn(t)) && !t.After(tc.CloseOn(t))
}

// AtOrAfterClose reports whether t is at or past the session close.
func (tc *TradingCalendar) AtOrAfterClose(t time.Time) bool {
	return !t.Before(tc.CloseOn(t))
}

// MinutesToClose returns the whole minutes between t and the close of
// ref's day, truncated toward zero.
func (tc *TradingCalendar) MinutesToClose(ref, t time.Time) int {
	return int(tc.CloseOn(ref).Sub(t).Minutes())
}

// SameDay reports whether a and b fall on the same calendar day in the
// session's zone.
func (tc *TradingCalendar) SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(tc.Location).Date()
	by, bm, bd := b.In(tc.Location).Date()
	return ay == by && am == bm && ad == bd
}

// IsWeekend reports whether t is a Saturday or Sunday in the session's zone.
func (tc *TradingCalendar) IsWeekend(t time.Time) bool {
	switch t.In(tc.Location).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}
