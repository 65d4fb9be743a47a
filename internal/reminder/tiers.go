// Package reminder escalates overdue invoices on a fixed ladder: a
// nudge at 7 days, a firmer note at 14, a final notice at 30. Each
// tier fires at most once per invoice, enforced by a claim row written
// before anything is sent.
package reminder

// Tiers are the escalation thresholds in days past due, ascending.
var Tiers = []int{7, 14, 30}

// TierFor returns the tier due on this exact day past due, or 0 if
// none. A tier fires only on its crossing day, never every day after;
// the claim row keeps a double run on the crossing day to one send.
func TierFor(daysPastDue int) int {
	for _, t := range Tiers {
		if daysPastDue == t {
			return t
		}
	}
	return 0
}
