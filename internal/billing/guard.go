package billing

import "time"

// Action names a lifecycle operation for idempotency checks and
// activity records.
type Action string

const (
	ActionSend     Action = "send"
	ActionMarkPaid Action = "mark_paid"
	ActionAccept   Action = "accept"
	ActionDecline  Action = "decline"
	ActionCancel   Action = "cancel"
	ActionExpire   Action = "expire"
)

func (a Action) pastTense() string {
	switch a {
	case ActionSend:
		return "sent"
	case ActionMarkPaid:
		return "marked paid"
	case ActionAccept:
		return "accepted"
	case ActionDecline:
		return "declined"
	case ActionCancel:
		return "cancelled"
	case ActionExpire:
		return "expired"
	default:
		return string(a)
	}
}

// target maps an action to the status it drives the document into.
func (a Action) target() Status {
	switch a {
	case ActionSend:
		return StatusSent
	case ActionMarkPaid:
		return StatusPaid
	case ActionAccept:
		return StatusAccepted
	case ActionDecline:
		return StatusDeclined
	case ActionCancel:
		return StatusCancelled
	case ActionExpire:
		return StatusExpired
	default:
		return Status(a)
	}
}

// Guard is the cheap idempotency pre-check that runs before any
// rendering or delivery work. It catches repeats of completed
// transitions (double-click, retried webhook, stale tab) without
// touching a single external system. It is advisory only: the
// authoritative duplicate check is the compare-and-set status write,
// which closes the race two concurrent callers can still slip through
// here.
func Guard(d *Document, action Action, force bool) error {
	target := action.target()

	if d.Status == target {
		if force && action == ActionSend {
			// Explicit resend of an already-sent document is allowed
			// and re-delivers without erroring.
			return nil
		}
		return AlreadyDone(action, priorStamp(d, action))
	}

	if !d.CanTransition(target) {
		return InvalidTransition(d, target)
	}
	return nil
}

func priorStamp(d *Document, action Action) *time.Time {
	switch action {
	case ActionSend:
		return d.SentAt
	case ActionMarkPaid:
		return d.PaidAt
	case ActionAccept:
		return d.AcceptedAt
	case ActionDecline:
		return d.DeclinedAt
	default:
		return nil
	}
}
