package models

import "time"

// Presence is the coarse availability of a user.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
	PresenceAway    Presence = "away"
	PresenceBusy    Presence = "busy"
)

// Valid reports whether p is one of the known presence values.
func (p Presence) Valid() bool {
	switch p {
	case PresenceOnline, PresenceOffline, PresenceAway, PresenceBusy:
		return true
	}
	return false
}

// AccountStatus is the administrative state of a user account.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
	AccountBlocked  AccountStatus = "blocked"
)

// User mirrors the external user store row the core reads.
type User struct {
	ID             int           `db:"id" json:"id"`
	Name           string        `db:"name" json:"name"`
	Username       string        `db:"username" json:"username"`
	Email          string        `db:"email" json:"email"`
	RoleID         int           `db:"role_id" json:"role_id"`
	Presence       Presence      `db:"presence" json:"presence"`
	AccountStatus  AccountStatus `db:"account_status" json:"account_status"`
	IPAddress      *string       `db:"ip_address" json:"ip_address"`
	OfficeLocation *string       `db:"office_location" json:"office_location"`
	LastSeen       *time.Time    `db:"last_seen" json:"last_seen"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Active reports whether the account may open sessions.
func (u User) Active() bool {
	return u.AccountStatus == "" || u.AccountStatus == AccountActive
}
