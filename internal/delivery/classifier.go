package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/tradedesk/billing/pkg/mailer/gmaildraft"
)

// Category buckets a raw provider failure into something the business
// owner can act on.
type Category string

const (
	CategoryAuthExpired      Category = "auth_expired"
	CategoryNotConfigured    Category = "not_configured"
	CategoryNetwork          Category = "network"
	CategoryRateLimited      Category = "rate_limited"
	CategoryInvalidRecipient Category = "invalid_recipient"
	CategoryUnknown          Category = "unknown"
)

// ClassifiedError wraps a channel failure with its category and a
// remediation hint. The raw error is preserved for logs; the category
// and fix are what surface to the owner.
type ClassifiedError struct {
	Category Category
	Fix      string
	Err      error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("delivery: %s: %v", e.Category, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the same send could plausibly succeed on a
// later attempt without anyone changing anything.
func (e *ClassifiedError) Retriable() bool {
	return e.Category == CategoryNetwork || e.Category == CategoryRateLimited
}

var fixes = map[Category]string{
	CategoryAuthExpired:      "Reconnect your email account in settings.",
	CategoryNotConfigured:    "Set up an email sending method in settings.",
	CategoryNetwork:          "Check your connection and try again in a minute.",
	CategoryRateLimited:      "Too many emails sent recently. Wait a few minutes and retry.",
	CategoryInvalidRecipient: "Check the client's email address.",
	CategoryUnknown:          "Try again; contact support if it keeps failing.",
}

// classRule matches provider error text to a category. Substring
// matching against lowercased text is crude but matches what the
// providers actually return; none of them expose stable error codes
// through their SDKs.
type classRule struct {
	substrings []string
	category   Category
}

var classRules = []classRule{
	{[]string{"invalid_grant", "token has been expired or revoked", "401", "unauthorized", "invalid credentials", "authentication failed", "username and password not accepted"}, CategoryAuthExpired},
	{[]string{"429", "rate limit", "too many requests", "quota exceeded"}, CategoryRateLimited},
	{[]string{"invalid recipient", "recipient address rejected", "no such user", "mailbox unavailable", "domain not found", "invalid `to`"}, CategoryInvalidRecipient},
	{[]string{"connection refused", "connection reset", "no such host", "i/o timeout", "network is unreachable", "broken pipe", "eof"}, CategoryNetwork},
}

// Classify buckets a channel failure. Typed errors are checked first;
// everything else falls through the text rules to unknown.
func Classify(err error) *ClassifiedError {
	wrap := func(cat Category) *ClassifiedError {
		return &ClassifiedError{Category: cat, Fix: fixes[cat], Err: err}
	}

	if errors.Is(err, gmaildraft.ErrNotConnected) {
		return wrap(CategoryNotConfigured)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(CategoryNetwork)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(CategoryNetwork)
	}

	text := strings.ToLower(err.Error())
	for _, rule := range classRules {
		for _, sub := range rule.substrings {
			if strings.Contains(text, sub) {
				return wrap(rule.category)
			}
		}
	}

	return wrap(CategoryUnknown)
}

// NotConfiguredError is returned when a business has no usable channel
// at all, before any attempt is made.
func NotConfiguredError() *ClassifiedError {
	return &ClassifiedError{
		Category: CategoryNotConfigured,
		Fix:      fixes[CategoryNotConfigured],
		Err:      errors.New("no delivery channel configured"),
	}
}
