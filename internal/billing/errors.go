package billing

import (
	"errors"
	"fmt"
	"time"
)

// RejectionCode identifies why an operation was refused before any
// delivery or state change happened.
type RejectionCode string

const (
	RejectNotFound             RejectionCode = "not_found"
	RejectAlreadyInTargetState RejectionCode = "already_in_target_state"
	RejectInvalidTransition    RejectionCode = "invalid_transition"
	RejectMissingContactInfo   RejectionCode = "missing_contact_info"
	RejectMissingProfile       RejectionCode = "missing_business_profile"
	RejectMissingSignature     RejectionCode = "missing_signature"
)

// Rejection is a typed refusal carrying everything a caller needs to
// render a useful message: what happened, and what the user can do
// about it. A Rejection means nothing was sent and nothing changed.
type Rejection struct {
	Code    RejectionCode
	Title   string
	Message string
	Fix     string
	// PriorAt is set for already_in_target_state so callers can say
	// "this invoice was already marked paid on 12 Mar" instead of a
	// bare duplicate error.
	PriorAt *time.Time
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// AsRejection unwraps err into a *Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// NotFound rejects an action on a document that does not exist or
// belongs to another business.
func NotFound() *Rejection {
	return &Rejection{
		Code:    RejectNotFound,
		Title:   "Document not found",
		Message: "couldn't find that document",
		Fix:     "Refresh the list and try again.",
	}
}

// AlreadyDone rejects an action whose outcome is already recorded,
// e.g. marking a paid invoice paid again.
func AlreadyDone(action Action, at *time.Time) *Rejection {
	msg := fmt.Sprintf("this document was already %s", action.pastTense())
	if at != nil {
		msg = fmt.Sprintf("%s on %s", msg, at.Format("2 Jan 2006"))
	}
	return &Rejection{
		Code:    RejectAlreadyInTargetState,
		Title:   "Already done",
		Message: msg,
		Fix:     "No action needed.",
		PriorAt: at,
	}
}

// InvalidTransition rejects a move the lifecycle graph does not allow,
// e.g. accepting a draft quote that was never sent.
func InvalidTransition(d *Document, to Status) *Rejection {
	return &Rejection{
		Code:    RejectInvalidTransition,
		Title:   "Not possible right now",
		Message: fmt.Sprintf("a %s %s can't move to %s", d.Status, d.Kind, to),
		Fix:     "Check the document's current status.",
	}
}

// MissingContactInfo rejects a send when the client record has no
// usable address for the required channel.
func MissingContactInfo(clientName string) *Rejection {
	return &Rejection{
		Code:    RejectMissingContactInfo,
		Title:   "No email on file",
		Message: fmt.Sprintf("%s has no email address", clientName),
		Fix:     "Add an email address to the client and resend.",
	}
}

// MissingSignature rejects a quote resolution submitted without the
// client's signature evidence.
func MissingSignature() *Rejection {
	return &Rejection{
		Code:    RejectMissingSignature,
		Title:   "Signature required",
		Message: "a signer name and signature are required to resolve a quote",
		Fix:     "Capture the client's signature and try again.",
	}
}

// MissingBusinessProfile rejects a send when the issuing business has
// no profile to put on the document.
func MissingBusinessProfile() *Rejection {
	return &Rejection{
		Code:    RejectMissingProfile,
		Title:   "Business profile incomplete",
		Message: "your business profile is missing",
		Fix:     "Complete your business details in settings before sending.",
	}
}
