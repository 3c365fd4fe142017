// Package resolver turns one event plus the user directory into the set
// of delivery targets.
package resolver

import (
	"time"

	"github.com/mr1hm/quake-notify/internal/eligibility"
	"github.com/mr1hm/quake-notify/internal/models"
)

// Recipient is one delivery target for one event. It is ephemeral and
// never persisted.
type Recipient struct {
	UserID          string
	Token           string
	MatchedProfiles []string
	// Location of the first matched profile that has one, used to
	// enrich the notification body with distance and direction.
	Location *models.Coordinates
	Reason   string
}

// Resolve evaluates every user against the event and collects those with
// a push token and at least one matching profile. Users without a token
// are skipped before evaluation; that is an optimization only, a
// token-less user could never be a delivery target anyway. The result
// contains no duplicate user IDs.
func Resolve(event *models.Event, users []models.User, now time.Time) []Recipient {
	var recipients []Recipient
	seen := make(map[string]struct{}, len(users))

	for i := range users {
		u := &users[i]
		if u.PushToken == "" {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}

		match := eligibility.EvaluateUser(event, u, now)
		if !match.Matched() {
			continue
		}

		seen[u.ID] = struct{}{}
		recipients = append(recipients, Recipient{
			UserID:          u.ID,
			Token:           u.PushToken,
			MatchedProfiles: match.Profiles,
			Location:        matchedLocation(u, match.Profiles),
			Reason:          match.Reason(),
		})
	}

	return recipients
}

func matchedLocation(u *models.User, matched []string) *models.Coordinates {
	for _, name := range matched {
		for i := range u.Preferences.Profiles {
			p := &u.Preferences.Profiles[i]
			if p.Name == name && p.Location != nil {
				return p.Location
			}
		}
	}
	return nil
}
