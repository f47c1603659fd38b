package lifecycle

import "fmt"

// GroupStatus is the closed set of GroupMatch states.
type GroupStatus string

const (
	GroupForming   GroupStatus = "forming"
	GroupConfirmed GroupStatus = "confirmed"
	GroupScheduled GroupStatus = "scheduled"
	GroupCompleted GroupStatus = "completed"
	GroupCancelled GroupStatus = "cancelled"
	GroupExpired   GroupStatus = "expired"
)

// MemberStatus is the closed set of GroupMatchMember states.
type MemberStatus string

const (
	MemberInvited  MemberStatus = "invited"
	MemberAccepted MemberStatus = "accepted"
	MemberDeclined MemberStatus = "declined"
	MemberLeft     MemberStatus = "left"
	MemberRemoved  MemberStatus = "removed"
	MemberReplaced MemberStatus = "replaced"
)

// GroupMode distinguishes meetup groups from chat-only connections.
type GroupMode string

const (
	ModeInPerson GroupMode = "in_person"
	ModeChatOnly GroupMode = "chat_only"
)

// CreatedSource records who proposed a group.
type CreatedSource string

const (
	SourceSystem CreatedSource = "system"
	SourceUser   CreatedSource = "user"
	SourceAdmin  CreatedSource = "admin"
)

// MemberAction is a member-initiated transition request.
type MemberAction string

const (
	ActionAccept  MemberAction = "accept"
	ActionDecline MemberAction = "decline"
	ActionLeave   MemberAction = "leave"
)

// ConfirmThreshold is the accepted-member count at which a group confirms.
const ConfirmThreshold = 4

// IsTerminal reports whether no further automatic recomputation may occur.
func (s GroupStatus) IsTerminal() bool {
	switch s {
	case GroupCompleted, GroupCancelled, GroupExpired:
		return true
	}
	return false
}

// ConflictError is a rejected transition. It carries the reason so callers can
// message the member; the HTTP layer maps it to 409.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func reject(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// ValidateMemberAction checks the (group state, member state, action) triple
// and returns the member's new status, or a ConflictError describing why the
// transition is illegal. It mutates nothing.
func ValidateMemberAction(group GroupStatus, member MemberStatus, action MemberAction) (MemberStatus, error) {
	if group.IsTerminal() {
		return "", reject("group match is not active")
	}

	switch action {
	case ActionAccept:
		if member != MemberInvited {
			return "", reject("membership is not invited")
		}
		return MemberAccepted, nil

	case ActionDecline:
		if member != MemberInvited {
			return "", reject("membership is not invited")
		}
		return MemberDeclined, nil

	case ActionLeave:
		// Travel commitments are locked in once scheduled.
		if group == GroupScheduled {
			return "", reject("cannot leave group in current status")
		}
		if member != MemberAccepted {
			return "", reject("membership is not accepted")
		}
		return MemberLeft, nil
	}

	return "", reject("unknown member action %q", action)
}

// GroupSnapshot is the consistent view of a group used to recompute its
// status after a membership mutation.
type GroupSnapshot struct {
	Status        GroupStatus
	Mode          GroupMode
	AcceptedCount int
	HasVenue      bool
}

// NextGroupStatus applies the forming<->confirmed recomputation rule:
// confirmed iff accepted >= ConfirmThreshold and (chat_only or a venue
// exists). Terminal and scheduled states are left untouched.
func NextGroupStatus(s GroupSnapshot) GroupStatus {
	if s.Status.IsTerminal() {
		return s.Status
	}

	confirmable := s.AcceptedCount >= ConfirmThreshold && (s.Mode == ModeChatOnly || s.HasVenue)

	switch s.Status {
	case GroupForming:
		if confirmable {
			return GroupConfirmed
		}
	case GroupConfirmed:
		if s.AcceptedCount < ConfirmThreshold {
			return GroupForming
		}
	}
	return s.Status
}

// ChatRoomKey derives the deterministic chat room key assigned on first
// confirmation.
func ChatRoomKey(groupID string) string {
	return "group-" + groupID
}
