// Package sanitizer cleans business-supplied HTML before it is embedded in
// outbound emails. Custom cover notes come from the business profile editor
// and must never carry scripts or event handlers into a client's inbox.
package sanitizer

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy *bluemonday.Policy
	notePolicy   *bluemonday.Policy
	initOnce     sync.Once
)

func initPolicies() {
	initOnce.Do(func() {
		// strictPolicy strips ALL HTML, returning plain text.
		strictPolicy = bluemonday.StrictPolicy()

		// notePolicy allows the basic formatting the message editor produces.
		notePolicy = bluemonday.NewPolicy()
		notePolicy.AllowStandardURLs()
		notePolicy.AllowElements(
			"p", "br",
			"strong", "b", "em", "i",
			"ul", "ol", "li",
			"blockquote",
		)
		notePolicy.AllowAttrs("href").OnElements("a")
		notePolicy.RequireNoFollowOnLinks(true)
	})
}

// SanitizeNote allows safe formatting tags (p, a, strong, em, lists) and
// strips everything dangerous: scripts, event handlers, javascript: URLs.
func SanitizeNote(s string) string {
	initPolicies()
	return notePolicy.Sanitize(s)
}

// StripHTML removes all markup, returning plain text.
// Used to derive SMS bodies and plain-text email alternatives.
func StripHTML(s string) string {
	initPolicies()
	return strictPolicy.Sanitize(s)
}
