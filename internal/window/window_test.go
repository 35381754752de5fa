package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"fedflow/pkg/contracts/domain"
)

func frozen(t *testing.T, value string) *clocktesting.FakePassiveClock {
	t.Helper()
	now, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return clocktesting.NewFakePassiveClock(now)
}

func date(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse(domain.DateLayout, value)
	require.NoError(t, err)
	return d
}

func TestResolveModes(t *testing.T) {
	// Invoked mid-day on 2025-10-29 UTC; yesterday is 2025-10-28.
	resolver := NewResolver(frozen(t, "2025-10-29T14:30:00Z"), 0)

	tests := []struct {
		name      string
		req       Request
		wantStart string
		wantEnd   string
	}{
		{
			name:      "daily is yesterday alone",
			req:       Request{Mode: domain.ModeDaily},
			wantStart: "2025-10-28",
			wantEnd:   "2025-10-28",
		},
		{
			name:      "weekly is last 7 complete days",
			req:       Request{Mode: domain.ModeWeekly},
			wantStart: "2025-10-22",
			wantEnd:   "2025-10-28",
		},
		{
			name:      "monthly is last 30 complete days",
			req:       Request{Mode: domain.ModeMonthly},
			wantStart: "2025-09-29",
			wantEnd:   "2025-10-28",
		},
		{
			name:      "backfill counts back from today",
			req:       Request{Mode: domain.ModeBackfill, BackfillDays: 10},
			wantStart: "2025-10-19",
			wantEnd:   "2025-10-28",
		},
		{
			name:      "backfill of one day equals daily",
			req:       Request{Mode: domain.ModeBackfill, BackfillDays: 1},
			wantStart: "2025-10-28",
			wantEnd:   "2025-10-28",
		},
		{
			name: "explicit range overrides mode",
			req: Request{
				Mode:  domain.ModeDaily,
				Start: date(t, "2025-01-01"),
				End:   date(t, "2025-01-31"),
			},
			wantStart: "2025-01-01",
			wantEnd:   "2025-01-31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := resolver.Resolve(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, w.Start.Format(domain.DateLayout))
			assert.Equal(t, tt.wantEnd, w.End.Format(domain.DateLayout))
		})
	}
}

func TestResolveErrors(t *testing.T) {
	resolver := NewResolver(frozen(t, "2025-10-29T14:30:00Z"), 0)

	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "unknown mode",
			req:  Request{Mode: domain.Mode("hourly")},
		},
		{
			name: "start after end",
			req: Request{
				Mode:  domain.ModeRange,
				Start: date(t, "2025-02-01"),
				End:   date(t, "2025-01-01"),
			},
		},
		{
			name: "range mode without bounds",
			req:  Request{Mode: domain.ModeRange},
		},
		{
			name: "explicit range with only start",
			req:  Request{Mode: domain.ModeDaily, Start: date(t, "2025-01-01")},
		},
		{
			name: "backfill days below one",
			req:  Request{Mode: domain.ModeBackfill, BackfillDays: 0},
		},
		{
			name: "window exceeds maximum span",
			req: Request{
				Mode:  domain.ModeRange,
				Start: date(t, "2020-01-01"),
				End:   date(t, "2025-01-01"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Resolve(tt.req)
			require.Error(t, err)
			var winErr *InvalidWindowError
			assert.ErrorAs(t, err, &winErr)
		})
	}
}

func TestResolveMaxSpanConfigurable(t *testing.T) {
	resolver := NewResolver(frozen(t, "2025-10-29T00:00:00Z"), 5)

	_, err := resolver.Resolve(Request{Mode: domain.ModeWeekly})
	require.Error(t, err, "7-day window must exceed a 5-day cap")

	w, err := resolver.Resolve(Request{Mode: domain.ModeBackfill, BackfillDays: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, w.Days())
}

func TestRunIDDeterministic(t *testing.T) {
	resolver := NewResolver(frozen(t, "2025-10-29T03:15:00Z"), 0)
	w, err := resolver.Resolve(Request{Mode: domain.ModeDaily})
	require.NoError(t, err)

	first := domain.NewRunID(domain.ModeDaily, w, resolver.Now())
	second := domain.NewRunID(domain.ModeDaily, w, resolver.Now())
	assert.Equal(t, first, second, "identical logical requests must share a run id")
	assert.Equal(t, "daily_20251028_20251028_20251029T031500Z", first)
}

func TestWindowDaysInclusive(t *testing.T) {
	w := domain.Window{Start: date(t, "2025-10-01"), End: date(t, "2025-10-07")}
	assert.Equal(t, 7, w.Days())
	assert.True(t, w.Contains(date(t, "2025-10-01")))
	assert.True(t, w.Contains(date(t, "2025-10-07")))
	assert.False(t, w.Contains(date(t, "2025-10-08")))
}
