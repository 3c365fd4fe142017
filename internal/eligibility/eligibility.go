// Package eligibility decides whether one event should be delivered to
// one user, profile by profile.
package eligibility

import (
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/quake-notify/internal/geo"
	"github.com/mr1hm/quake-notify/internal/models"
)

// Rule identifies which part of the policy decided the outcome.
type Rule string

const (
	RuleDisabled       Rule = "notifications_disabled"
	RuleGlobalOverride Rule = "global_magnitude_override"
	RuleBelowMinMag    Rule = "below_min_magnitude"
	RuleAlwaysRadius   Rule = "always_notify_radius"
	RuleOutsideRadius  Rule = "outside_radius"
	RuleMatch          Rule = "magnitude_and_radius"
	RuleEmergency      Rule = "quiet_hours_emergency"
	RuleQuietHours     Rule = "quiet_hours_suppressed"
)

// Evaluate applies one profile's policy to an event at the given instant.
//
// Precedence is fixed: the global magnitude override short-circuits
// everything (including the magnitude gate, radius filters and quiet
// hours); then the magnitude gate; then the always-notify radius; then
// the standard radius filter; finally quiet hours, which during an
// active window only let emergency-grade, in-radius events through.
func Evaluate(e *models.Event, p *models.PreferenceProfile, now time.Time) (bool, Rule) {
	if !p.NotificationsEnabled {
		return false, RuleDisabled
	}

	if p.GlobalMinMagnitude > 0 && e.Magnitude >= p.GlobalMinMagnitude {
		return true, RuleGlobalOverride
	}

	if e.Magnitude < p.MinMagnitude {
		return false, RuleBelowMinMag
	}

	var dist float64
	hasLoc := p.Location != nil
	if hasLoc {
		dist = geo.DistanceKm(p.Location.Latitude, p.Location.Longitude, e.Latitude, e.Longitude)
	}

	if p.AlwaysNotifyRadiusEnabled && p.AlwaysNotifyRadiusKm > 0 && hasLoc && dist <= p.AlwaysNotifyRadiusKm {
		return true, RuleAlwaysRadius
	}

	// RadiusKm == 0 means worldwide. A radius without a location cannot
	// be applied and falls through to worldwide as well.
	if p.RadiusKm > 0 && hasLoc && dist > p.RadiusKm {
		return false, RuleOutsideRadius
	}

	if !quietAt(&p.QuietHours, now) {
		return true, RuleMatch
	}

	if e.Magnitude >= p.EmergencyMagnitude && hasLoc && dist <= p.EmergencyRadiusKm {
		return true, RuleEmergency
	}
	return false, RuleQuietHours
}

// quietAt reports whether the quiet-hours window is active at the given
// instant. A window whose start is at or after its end spans midnight.
func quietAt(q *models.QuietHours, now time.Time) bool {
	if !q.Enabled {
		return false
	}

	day := int(now.Weekday())
	active := false
	for _, d := range q.Days {
		if d == day {
			active = true
			break
		}
	}
	if !active {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	start := q.StartHour*60 + q.StartMinute
	end := q.EndHour*60 + q.EndMinute

	if start < end {
		return start <= minute && minute < end
	}
	return minute >= start || minute < end
}

// UserMatch is the outcome of evaluating every profile of one user.
type UserMatch struct {
	Profiles []string // matched profile names, declaration order
	Rules    []Rule   // rule that fired for each matched profile
}

// Matched reports whether at least one profile matched.
func (m UserMatch) Matched() bool {
	return len(m.Rules) > 0
}

// Reason returns a short per-profile summary for logging.
func (m UserMatch) Reason() string {
	parts := make([]string, len(m.Rules))
	for i, r := range m.Rules {
		name := m.Profiles[i]
		if name == "" {
			name = "default"
		}
		parts[i] = fmt.Sprintf("%s:%s", name, r)
	}
	return strings.Join(parts, ",")
}

// EvaluateUser runs Evaluate for every profile independently; there is no
// short-circuit across profiles, so the match list is complete.
func EvaluateUser(e *models.Event, u *models.User, now time.Time) UserMatch {
	var m UserMatch
	for i := range u.Preferences.Profiles {
		p := &u.Preferences.Profiles[i]
		if ok, rule := Evaluate(e, p, now); ok {
			m.Profiles = append(m.Profiles, p.Name)
			m.Rules = append(m.Rules, rule)
		}
	}
	return m
}
