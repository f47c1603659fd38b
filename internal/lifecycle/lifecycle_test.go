package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMemberAction_Accept(t *testing.T) {
	next, err := ValidateMemberAction(GroupForming, MemberInvited, ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, MemberAccepted, next)

	// Only invited members may accept.
	for _, status := range []MemberStatus{MemberAccepted, MemberDeclined, MemberLeft, MemberRemoved, MemberReplaced} {
		_, err := ValidateMemberAction(GroupForming, status, ActionAccept)
		assert.Error(t, err, "accept from %s should be rejected", status)
	}
}

func TestValidateMemberAction_Decline(t *testing.T) {
	next, err := ValidateMemberAction(GroupConfirmed, MemberInvited, ActionDecline)
	require.NoError(t, err)
	assert.Equal(t, MemberDeclined, next)

	// Re-declining an already resolved membership is a conflict.
	_, err = ValidateMemberAction(GroupConfirmed, MemberDeclined, ActionDecline)
	assert.Error(t, err)
}

func TestValidateMemberAction_Leave(t *testing.T) {
	next, err := ValidateMemberAction(GroupConfirmed, MemberAccepted, ActionLeave)
	require.NoError(t, err)
	assert.Equal(t, MemberLeft, next)

	// An invited member cannot jump straight to left.
	_, err = ValidateMemberAction(GroupForming, MemberInvited, ActionLeave)
	assert.Error(t, err)

	// Scheduled groups are locked in.
	_, err = ValidateMemberAction(GroupScheduled, MemberAccepted, ActionLeave)
	assert.Error(t, err)
}

func TestValidateMemberAction_TerminalGroup(t *testing.T) {
	for _, status := range []GroupStatus{GroupCompleted, GroupCancelled, GroupExpired} {
		for _, action := range []MemberAction{ActionAccept, ActionDecline, ActionLeave} {
			_, err := ValidateMemberAction(status, MemberInvited, action)
			assert.Error(t, err, "%s on %s group should be rejected", action, status)

			var conflict *ConflictError
			assert.ErrorAs(t, err, &conflict)
		}
	}
}

func TestNextGroupStatus_ConfirmsAtThreshold(t *testing.T) {
	cases := []struct {
		name string
		snap GroupSnapshot
		want GroupStatus
	}{
		{
			name: "forming confirms with venue",
			snap: GroupSnapshot{Status: GroupForming, Mode: ModeInPerson, AcceptedCount: 4, HasVenue: true},
			want: GroupConfirmed,
		},
		{
			name: "forming stays without venue",
			snap: GroupSnapshot{Status: GroupForming, Mode: ModeInPerson, AcceptedCount: 4, HasVenue: false},
			want: GroupForming,
		},
		{
			name: "chat_only confirms without venue",
			snap: GroupSnapshot{Status: GroupForming, Mode: ModeChatOnly, AcceptedCount: 4, HasVenue: false},
			want: GroupConfirmed,
		},
		{
			name: "forming stays below threshold",
			snap: GroupSnapshot{Status: GroupForming, Mode: ModeChatOnly, AcceptedCount: 3, HasVenue: true},
			want: GroupForming,
		},
		{
			name: "confirmed demotes below threshold",
			snap: GroupSnapshot{Status: GroupConfirmed, Mode: ModeInPerson, AcceptedCount: 3, HasVenue: true},
			want: GroupForming,
		},
		{
			name: "confirmed holds at threshold",
			snap: GroupSnapshot{Status: GroupConfirmed, Mode: ModeInPerson, AcceptedCount: 4, HasVenue: true},
			want: GroupConfirmed,
		},
		{
			name: "scheduled untouched",
			snap: GroupSnapshot{Status: GroupScheduled, Mode: ModeInPerson, AcceptedCount: 1, HasVenue: true},
			want: GroupScheduled,
		},
		{
			name: "terminal untouched",
			snap: GroupSnapshot{Status: GroupCancelled, Mode: ModeChatOnly, AcceptedCount: 9, HasVenue: true},
			want: GroupCancelled,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextGroupStatus(tc.snap))
		})
	}
}

func TestChatRoomKey(t *testing.T) {
	assert.Equal(t, "group-abc", ChatRoomKey("abc"))
}
