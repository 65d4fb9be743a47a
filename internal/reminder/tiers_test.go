package reminder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradedesk/billing/internal/reminder"
)

func TestTierFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		days int
		want int
	}{
		{0, 0},
		{1, 0},
		{6, 0},
		{7, 7},
		{8, 0},
		{13, 0},
		{14, 14},
		{15, 0},
		{29, 0},
		{30, 30},
		{31, 0},
		{365, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, reminder.TierFor(tt.days), "days=%d", tt.days)
	}
}
