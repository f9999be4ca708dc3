package models

import "time"

// RequestStatus is the lifecycle state of a connection request.
// A pair with no active record is in the implicit "none" state.
type RequestStatus string

const (
	RequestSent     RequestStatus = "sent"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
	RequestDeleted  RequestStatus = "deleted"
)

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s == RequestAccepted || s == RequestRejected || s == RequestDeleted
}

// ApprovalStatus tracks the administrative gate in front of the recipient.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// RequestAction is the label driving a connection request transition.
type RequestAction string

const (
	ActionSend   RequestAction = "send"
	ActionAccept RequestAction = "accept"
	ActionReject RequestAction = "reject"
	ActionDelete RequestAction = "delete"
)

// Valid reports whether a is a known action.
func (a RequestAction) Valid() bool {
	switch a {
	case ActionSend, ActionAccept, ActionReject, ActionDelete:
		return true
	}
	return false
}

// ConnectionRequest is a directed contact proposal between two users.
type ConnectionRequest struct {
	ID             int            `db:"id" json:"id"`
	FromUserID     int            `db:"from_user_id" json:"from_user_id"`
	ToUserID       int            `db:"to_user_id" json:"to_user_id"`
	Status         RequestStatus  `db:"status" json:"status"`
	ApprovalStatus ApprovalStatus `db:"admin_approval_status" json:"admin_approval_status"`
	ApprovedBy     *int           `db:"admin_approved_by" json:"admin_approved_by"`
	ApprovedAt     *time.Time     `db:"admin_approved_at" json:"admin_approved_at"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// VisibleToRecipient reports whether the recipient has been shown the request.
func (r ConnectionRequest) VisibleToRecipient() bool {
	return r.ApprovalStatus == ApprovalApproved
}

// RequestStats summarises requests for the admin dashboard.
type RequestStats struct {
	Pending       int `db:"pending" json:"pending"`
	Approved      int `db:"approved" json:"approved"`
	Rejected      int `db:"rejected" json:"rejected"`
	FullyAccepted int `db:"fully_accepted" json:"fully_accepted"`
}
