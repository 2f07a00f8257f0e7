// Package domain contains core business types and interfaces.
//
// This file defines groups for shared planning and their single-use invites.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// GroupRole is a member's role within a group.
type GroupRole string

const (
	GroupRoleOwner  GroupRole = "owner"
	GroupRoleMember GroupRole = "member"
)

// Group is a set of users coordinating shared goals or events.
type Group struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupMember links a user to a group.
type GroupMember struct {
	GroupID  uuid.UUID `json:"group_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     GroupRole `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// InviteStatus is the lifecycle of a group invite.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusRevoked  InviteStatus = "revoked"
)

// GroupInvite is a single-use code granting membership.
type GroupInvite struct {
	ID         uuid.UUID    `json:"id"`
	GroupID    uuid.UUID    `json:"group_id"`
	Code       string       `json:"code"`
	InvitedBy  uuid.UUID    `json:"invited_by"`
	Status     InviteStatus `json:"status"`
	AcceptedBy *uuid.UUID   `json:"accepted_by,omitempty"`
	AcceptedAt *time.Time   `json:"accepted_at,omitempty"`
	ExpiresAt  time.Time    `json:"expires_at"`
	CreatedAt  time.Time    `json:"created_at"`
}

// IsExpired reports whether the invite can no longer be accepted at now.
func (i *GroupInvite) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
