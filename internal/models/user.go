package models

import "encoding/json"

// QuietHours is a recurring window during which only emergency-grade
// events are delivered. Days use 0=Sunday .. 6=Saturday, matching
// time.Weekday.
type QuietHours struct {
	Enabled     bool  `json:"enabled"`
	StartHour   int   `json:"start_hour"`
	StartMinute int   `json:"start_minute"`
	EndHour     int   `json:"end_hour"`
	EndMinute   int   `json:"end_minute"`
	Days        []int `json:"days"`
}

// PreferenceProfile is one named set of notification rules. A user may
// have several; each is evaluated independently.
type PreferenceProfile struct {
	Name                 string  `json:"name"`
	NotificationsEnabled bool    `json:"notifications_enabled"`
	MinMagnitude         float64 `json:"min_magnitude"`
	// RadiusKm limits matches to events near Location; 0 means worldwide.
	RadiusKm float64 `json:"radius"`

	AlwaysNotifyRadiusEnabled bool    `json:"always_notify_radius_enabled"`
	AlwaysNotifyRadiusKm      float64 `json:"always_notify_radius_value"`

	// GlobalMinMagnitude forces delivery for any event at or above this
	// magnitude, bypassing every other filter. 0 disables it.
	GlobalMinMagnitude float64 `json:"global_min_magnitude_override"`

	EmergencyMagnitude float64 `json:"emergency_magnitude_threshold"`
	EmergencyRadiusKm  float64 `json:"emergency_radius"`

	QuietHours QuietHours `json:"quiet_hours"`

	// Location is required for any radius-based rule; profiles without
	// one simply skip those rules.
	Location *Coordinates `json:"location,omitempty"`
}

// Preferences holds a user's profiles. Legacy documents store a single
// bare profile object; newer ones store a list of named profiles. Both
// shapes decode into a list, so callers only ever see the multi-profile
// form.
type Preferences struct {
	Profiles []PreferenceProfile
}

func (p Preferences) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Profiles)
}

func (p *Preferences) UnmarshalJSON(data []byte) error {
	for _, c := range data {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return json.Unmarshal(data, &p.Profiles)
		default:
			var legacy PreferenceProfile
			if err := json.Unmarshal(data, &legacy); err != nil {
				return err
			}
			p.Profiles = []PreferenceProfile{legacy}
			return nil
		}
	}
	p.Profiles = nil
	return nil
}

// Enabled reports whether at least one profile has notifications on.
func (p Preferences) Enabled() bool {
	for _, prof := range p.Profiles {
		if prof.NotificationsEnabled {
			return true
		}
	}
	return false
}

// User is a registered device owner. PushToken is the opaque delivery
// credential; a user without one is never a delivery target.
type User struct {
	ID          string
	PushToken   string
	Preferences Preferences
}
