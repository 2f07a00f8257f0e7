package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/invite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupInvite_AcceptOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner, friend, stranger := uuid.New(), uuid.New(), uuid.New()

	g, err := e.groups.CreateGroup(ctx, owner, " Household ")
	require.NoError(t, err)
	assert.Equal(t, "Household", g.Name)

	inv, err := e.groups.Invite(ctx, g.ID, owner)
	require.NoError(t, err)
	assert.True(t, invite.Valid(inv.Code))
	assert.Equal(t, testNow.Add(DefaultInviteTTL), inv.ExpiresAt)

	e.clock.Advance(time.Hour)

	// Codes are accepted regardless of case and separator.
	accepted, err := e.groups.AcceptInvite(ctx, strings.ToLower(strings.ReplaceAll(inv.Code, "-", "")), friend)
	require.NoError(t, err)
	assert.Equal(t, domain.InviteStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedBy)
	assert.Equal(t, friend, *accepted.AcceptedBy)

	_, err = e.groups.AcceptInvite(ctx, inv.Code, stranger)
	assert.Equal(t, domain.EGONE, domain.ErrorCode(err))

	members, err := e.groups.ListMembers(ctx, g.ID, friend)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, domain.GroupRoleOwner, members[0].Role)
	assert.Equal(t, domain.GroupRoleMember, members[1].Role)

	_, err = e.groups.ListMembers(ctx, g.ID, stranger)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestGroupInvite_ConcurrentAccept(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	g, err := e.groups.CreateGroup(ctx, owner, "Trip fund")
	require.NoError(t, err)
	inv, err := e.groups.Invite(ctx, g.ID, owner)
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	codes := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.groups.AcceptInvite(ctx, inv.Code, uuid.New())
			codes[i] = domain.ErrorCode(err)
		}(i)
	}
	wg.Wait()

	var ok, gone int
	for _, c := range codes {
		switch c {
		case "":
			ok++
		case domain.EGONE:
			gone++
		}
	}
	assert.Equal(t, 1, ok, "exactly one caller wins the invite")
	assert.Equal(t, n-1, gone)
}

func TestGroupInvite_Expired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	g, err := e.groups.CreateGroup(ctx, owner, "Trip fund")
	require.NoError(t, err)
	inv, err := e.groups.Invite(ctx, g.ID, owner)
	require.NoError(t, err)

	e.clock.Advance(DefaultInviteTTL + time.Second)
	_, err = e.groups.AcceptInvite(ctx, inv.Code, uuid.New())
	assert.Equal(t, domain.EGONE, domain.ErrorCode(err))
}

func TestGroupInvite_Errors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := e.groups.CreateGroup(ctx, owner, "")
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	g, err := e.groups.CreateGroup(ctx, owner, "Trip fund")
	require.NoError(t, err)

	_, err = e.groups.Invite(ctx, g.ID, uuid.New())
	assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))

	_, err = e.groups.Invite(ctx, uuid.New(), owner)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	_, err = e.groups.AcceptInvite(ctx, "nope", uuid.New())
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = e.groups.AcceptInvite(ctx, "ABCD-EFGH", uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
