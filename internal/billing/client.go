package billing

import (
	"regexp"
	"strings"
	"time"
)

// Client is the recipient of documents and reminders.
type Client struct {
	ID         string
	BusinessID string
	Name       string
	Email      string
	Phone      string
	Address    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Australian mobile numbers only: 04xx xxx xxx or +614xx xxx xxx.
// Landlines can't receive SMS, so anything else is treated as absent.
var auMobileRe = regexp.MustCompile(`^(?:\+?61|0)4\d{8}$`)

// MobileE164 returns the client's phone normalized to +614xxxxxxxx and
// whether it is a valid Australian mobile. Spaces, dashes and
// parentheses are tolerated on input.
func (c *Client) MobileE164() (string, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, c.Phone)

	if !auMobileRe.MatchString(cleaned) {
		return "", false
	}

	if strings.HasPrefix(cleaned, "0") {
		return "+61" + cleaned[1:], true
	}
	if strings.HasPrefix(cleaned, "61") {
		return "+" + cleaned, true
	}
	return cleaned, true
}

// HasEmail reports whether the client can receive email.
func (c *Client) HasEmail() bool {
	return strings.TrimSpace(c.Email) != ""
}
