// Package timewindow turns absolute or relative date filters into a concrete
// exclusive (after, before) interval.
package timewindow

import (
	"strings"
	"time"

	"github.com/krishhrana/whatsapp-mcp/internal/apperr"
)

// Layout is the normalized ISO-8601 form every resolved bound is rendered in.
// UTC renders as +00:00, never Z.
const Layout = "2006-01-02T15:04:05.999999999-07:00"

const example = "2026-02-20T12:00:00-08:00"

// Accepted input layouts, tried in order. Fractional seconds are accepted after
// the seconds field even though the layouts omit them.
var (
	zonedLayouts = []string{
		"2006-01-02T15:04:05-07:00",
		"2006-01-02T15:04-07:00",
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04-0700",
		"2006-01-02T15:04:05-07",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

// Params are the raw window inputs of a request. An empty After/Before and a nil
// LookbackValue with an empty LookbackUnit mean "not supplied".
type Params struct {
	After         string
	Before        string
	LookbackValue *int
	LookbackUnit  string
}

func (p Params) absolute() bool { return p.After != "" || p.Before != "" }

func (p Params) relative() bool {
	return p.LookbackValue != nil || strings.TrimSpace(p.LookbackUnit) != ""
}

// Window is a resolved interval. A zero bound is open.
type Window struct {
	After  time.Time
	Before time.Time
}

// IsEmpty reports whether neither bound is set.
func (w Window) IsEmpty() bool { return w.After.IsZero() && w.Before.IsZero() }

// AfterISO returns the lower bound in Layout, or "" when open.
func (w Window) AfterISO() string { return format(w.After) }

// BeforeISO returns the upper bound in Layout, or "" when open.
func (w Window) BeforeISO() string { return format(w.Before) }

func format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(Layout)
}

// Resolver resolves windows against a clock.
type Resolver struct {
	now func() time.Time
}

// NewResolver returns a Resolver reading the current instant from now.
// A nil now uses time.Now.
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{now: now}
}

var defaultResolver = NewResolver(nil)

// Resolve resolves p against the wall clock.
func Resolve(p Params) (Window, error) {
	return defaultResolver.Resolve(p)
}

// Resolve validates p and returns the interval it describes.
func (r *Resolver) Resolve(p Params) (Window, error) {
	if p.absolute() && p.relative() {
		return Window{}, apperr.Invalid("lookback_value",
			"use either absolute bounds (after_iso/before_iso) or relative bounds (lookback_value + lookback_unit), not both")
	}

	now := r.now()
	_, offset := now.Zone()
	local := time.FixedZone("", offset)
	now = now.In(local)

	if p.relative() {
		if p.LookbackValue == nil || strings.TrimSpace(p.LookbackUnit) == "" {
			return Window{}, apperr.Invalid("lookback_unit", "relative bounds require both lookback_value and lookback_unit")
		}
		if *p.LookbackValue <= 0 {
			return Window{}, apperr.Invalid("lookback_value", "must be greater than 0")
		}
		unit, err := unitDuration(p.LookbackUnit)
		if err != nil {
			return Window{}, err
		}
		delta := time.Duration(*p.LookbackValue) * unit
		return Window{After: now.Add(-delta), Before: now}, nil
	}

	var w Window
	if p.After != "" {
		t, err := Parse(p.After, "after_iso", local)
		if err != nil {
			return Window{}, err
		}
		w.After = t
	}
	if p.Before != "" {
		t, err := Parse(p.Before, "before_iso", local)
		if err != nil {
			return Window{}, err
		}
		w.Before = t
	}
	if !w.After.IsZero() && !w.Before.IsZero() && !w.After.Before(w.Before) {
		return Window{}, apperr.Invalid("after_iso", "must be earlier than before_iso")
	}
	return w, nil
}

func unitDuration(unit string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "h":
		return time.Hour, nil
	case "d":
		return 24 * time.Hour, nil
	case "w":
		return 7 * 24 * time.Hour, nil
	}
	return 0, apperr.Invalid("lookback_unit", "must be one of: h, d, w (got %q)", unit)
}

// Parse strictly parses an ISO-8601 timestamp. A trailing Z means +00:00 and an
// offset-naive value is placed in loc.
func Parse(value, field string, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return time.Time{}, apperr.Invalid(field, "invalid empty timestamp")
	}
	candidate := raw
	if strings.HasSuffix(candidate, "Z") || strings.HasSuffix(candidate, "z") {
		candidate = candidate[:len(candidate)-1] + "+00:00"
	}
	if len(candidate) > 10 && candidate[10] == ' ' {
		candidate = candidate[:10] + "T" + candidate[11:]
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, candidate, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.Invalid(field, "invalid ISO timestamp %q; use ISO-8601, for example %s", value, example)
}
