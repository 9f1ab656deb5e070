package models

import "time"

// CoupleStatus is the state of a partner link.
type CoupleStatus string

const (
	CouplePending  CoupleStatus = "pending"
	CoupleAccepted CoupleStatus = "accepted"
)

// Couple links the inviting user with a partner invited by email.
type Couple struct {
	ID           string       `json:"id"`
	InviterID    string       `json:"inviter_id"`
	InviteeEmail string       `json:"invitee_email"`
	PartnerID    string       `json:"partner_id,omitempty"`
	Status       CoupleStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Notification kinds.
const (
	NotifyCoupleInvite   = "couple_invite"
	NotifyCoupleAccepted = "couple_accepted"
	NotifyPasswordReset  = "password_reset"
	NotifyGoalReached    = "goal_reached"
)

// Notification is a message shown to one user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
