// Package signaling implements the matchmaking and signaling core: the
// connection registry, the gender-bucketed queue set, the matcher, the
// session supervisor, and the signaling relay described by the service
// specification.
package signaling

import "github.com/google/uuid"

// Gender is one of the three genders a user may declare, or "any" when used
// as a preference.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
	GenderAny    Gender = "any"
)

// Valid reports whether g is one of the three concrete genders (not "any").
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	default:
		return false
	}
}

// Tier is the caller-asserted subscription tier. The server enforces
// preference rules based on it but never validates it against a billing
// system — that lives outside this service.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// State is a User's position in the Idle/Waiting/Paired state machine
// (spec §4.4.1). Only the Matcher and the Session Supervisor mutate it.
type State int

const (
	Idle State = iota
	Waiting
	Paired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Paired:
		return "paired"
	default:
		return "unknown"
	}
}

// User is the in-memory profile attached to one live connection. A User is
// owned by the Registry that holds it; every mutation to Partner or State
// must happen under the Registry's lock (see registry.go).
type User struct {
	ConnID uuid.UUID

	UserID   string
	Username string

	Gender          Gender
	Age             int
	PreferredGender Gender
	Tier            Tier

	// Partner is the connection ID of the current partner, or uuid.Nil when
	// unpaired.
	Partner uuid.UUID

	State State
}

// PublicInfo is the subset of a User's profile shared with a new partner.
type PublicInfo struct {
	Name   string `json:"name"`
	Gender Gender `json:"gender"`
	Age    int    `json:"age"`
}

func (u *User) publicInfo() PublicInfo {
	return PublicInfo{Name: u.Username, Gender: u.Gender, Age: u.Age}
}

// effectivePreference applies the tier-based access rule from spec §4.4
// rule 4: a free user's non-"any" preference is silently downgraded to
// "any" server-side, regardless of what the client sent.
func effectivePreference(u *User) Gender {
	if u.Tier == TierPremium && u.PreferredGender.Valid() {
		return u.PreferredGender
	}
	return GenderAny
}
