package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/invite"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
)

// DefaultInviteTTL is how long a group invite stays valid.
const DefaultInviteTTL = 7 * 24 * time.Hour

// GroupService manages groups for shared planning.
type GroupService interface {
	CreateGroup(ctx context.Context, ownerID uuid.UUID, name string) (*domain.Group, error)

	// ListMembers returns the group's members. Only members may list.
	ListMembers(ctx context.Context, groupID, userID uuid.UUID) ([]domain.GroupMember, error)

	// Invite creates a single-use invite code. Only the owner may invite.
	Invite(ctx context.Context, groupID, userID uuid.UUID) (*domain.GroupInvite, error)

	// AcceptInvite consumes the code and joins the group. A code that was
	// already used, revoked or has expired returns EGONE.
	AcceptInvite(ctx context.Context, code string, userID uuid.UUID) (*domain.GroupInvite, error)
}

type groupService struct {
	store     store.Store
	inviteTTL time.Duration
	logger    *slog.Logger
	now       Clock
}

// NewGroupService creates a new GroupService.
func NewGroupService(st store.Store, inviteTTL time.Duration, logger *slog.Logger) GroupService {
	if inviteTTL <= 0 {
		inviteTTL = DefaultInviteTTL
	}
	return &groupService{
		store:     st,
		inviteTTL: inviteTTL,
		logger:    logger,
		now:       systemClock,
	}
}

func (s *groupService) CreateGroup(ctx context.Context, ownerID uuid.UUID, name string) (*domain.Group, error) {
	const op = "group.create"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Invalid(op, "Group name is required")
	}
	if len(name) > 100 {
		return nil, domain.Invalid(op, "Group name must be 100 characters or fewer")
	}

	g, err := s.store.CreateGroup(ctx, domain.Group{Name: name, OwnerID: ownerID, CreatedAt: s.now()})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create group")
	}
	s.logger.Info("group created", "group_id", g.ID, "owner_id", ownerID)
	return g, nil
}

func (s *groupService) ListMembers(ctx context.Context, groupID, userID uuid.UUID) ([]domain.GroupMember, error) {
	const op = "group.list_members"

	if _, err := s.store.GetGroupMember(ctx, groupID, userID); err != nil {
		if isNotFound(err) {
			return nil, domain.NotFound(op, "group", groupID.String())
		}
		return nil, domain.Internal(err, op, "Failed to check membership")
	}
	members, err := s.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list members")
	}
	return members, nil
}

func (s *groupService) Invite(ctx context.Context, groupID, userID uuid.UUID) (*domain.GroupInvite, error) {
	const op = "group.invite"

	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.NotFound(op, "group", groupID.String())
		}
		return nil, domain.Internal(err, op, "Failed to load group")
	}
	if g.OwnerID != userID {
		return nil, domain.Forbidden(op, "Only the group owner can invite members")
	}

	now := s.now()
	// Retry on the rare code collision.
	for attempt := 0; attempt < 3; attempt++ {
		code, err := invite.Generate()
		if err != nil {
			return nil, domain.Internal(err, op, "Failed to generate invite code")
		}
		inv, err := s.store.CreateInvite(ctx, domain.GroupInvite{
			GroupID:   groupID,
			Code:      code,
			InvitedBy: userID,
			Status:    domain.InviteStatusPending,
			ExpiresAt: now.Add(s.inviteTTL),
			CreatedAt: now,
		})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, domain.Internal(err, op, "Failed to create invite")
		}
		s.logger.Info("group invite created", "group_id", groupID, "invite_id", inv.ID)
		return inv, nil
	}
	return nil, domain.Internal(store.ErrConflict, op, "Failed to create a unique invite code")
}

func (s *groupService) AcceptInvite(ctx context.Context, code string, userID uuid.UUID) (*domain.GroupInvite, error) {
	const op = "group.accept_invite"

	code = invite.Normalize(code)
	if !invite.Valid(code) {
		return nil, domain.Invalid(op, "Invalid invite code")
	}

	inv, err := s.store.AcceptInvite(ctx, code, userID, s.now())
	switch {
	case err == nil:
	case errors.Is(err, store.ErrInviteUnavailable):
		return nil, domain.Gone(op, "This invite has already been used or has expired")
	case isNotFound(err):
		return nil, domain.Errorf(domain.ENOTFOUND, op, "Invite not found")
	default:
		return nil, domain.Internal(err, op, "Failed to accept invite")
	}

	s.logger.Info("group invite accepted", "group_id", inv.GroupID, "user_id", userID)
	return inv, nil
}
