package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/repositories"
	"github.com/upb/stockbot/repositories/memory"
	"github.com/upb/stockbot/services"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func newTestService(t *testing.T, clock *testClock, opts ...Option) (*Service, *repositories.Repositories) {
	t.Helper()
	repos := memory.NewStore().Repositories()
	limits := Limits{MaxRequestCost: d("0.10"), DailyLimit: d("1.00")}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewService(repos.Ledger, repos.TxManager, limits, zap.NewNop(), opts...), repos
}

func seed(t *testing.T, repos *repositories.Repositories, userID, cost string, at time.Time) {
	t.Helper()
	entry := models.NewLedgerEntry(userID, at)
	entry.DailyCost = d(cost)
	require.NoError(t, repos.Ledger.Save(context.Background(), entry))
}

func TestCanSpend_PerRequestCeilingWinsRegardlessOfDailyCost(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	for _, daily := range []string{"0", "0.50", "0.99", "1.00"} {
		t.Run("daily="+daily, func(t *testing.T) {
			svc, repos := newTestService(t, clock)
			seed(t, repos, "u", daily, clock.t)

			result, err := svc.CanSpend(context.Background(), "u", d("0.11"))
			require.NoError(t, err)
			assert.False(t, result.Allowed)
			assert.Equal(t, services.ReasonPerRequestCeilingExceeded, result.Reason)
			assert.True(t, errors.Is(result.Err(), services.ErrPerRequestCeilingExceeded))
		})
	}
}

func TestCanSpend_DailyCeilingReportsRemaining(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, repos := newTestService(t, clock)
	seed(t, repos, "u", "0.95", clock.t)

	result, err := svc.CanSpend(context.Background(), "u", d("0.08"))
	require.NoError(t, err)

	assert.False(t, result.Allowed)
	assert.Equal(t, services.ReasonDailyCeilingExceeded, result.Reason)
	assert.True(t, result.RemainingBudget.Equal(d("0.05")), result.RemainingBudget.String())

	err = result.Err()
	assert.True(t, errors.Is(err, services.ErrDailyCeilingExceeded))
	assert.Equal(t, "0.05", services.GetErrorDetails(err)["remaining_budget"])
}

func TestCanSpend_AllowsAtExactLimits(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, repos := newTestService(t, clock)
	seed(t, repos, "u", "0.90", clock.t)

	result, err := svc.CanSpend(context.Background(), "u", d("0.10"))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, services.ReasonNone, result.Reason)
	assert.NoError(t, result.Err())
}

func TestCanSpend_DoesNotMutate(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, repos := newTestService(t, clock)

	for i := 0; i < 5; i++ {
		result, err := svc.CanSpend(context.Background(), "new-user", d("0.05"))
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	entry, err := repos.Ledger.Get(context.Background(), "new-user")
	require.NoError(t, err)
	assert.Nil(t, entry, "CanSpend must not create ledger rows")

	usage, err := svc.GetUsage(context.Background(), "new-user")
	require.NoError(t, err)
	assert.True(t, usage.DailyCost.IsZero())
	assert.True(t, usage.RemainingBudget.Equal(d("1.00")))
}

func TestRecord_SumsWithinADay(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 0, 5, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	costs := []string{"0.0123", "0.05", "0.0001", "0.07404"}
	want := decimal.Zero
	for i, c := range costs {
		clock.t = clock.t.Add(time.Duration(i) * time.Hour)
		usage, err := svc.Record(ctx, "u", d(c))
		require.NoError(t, err)
		want = want.Add(d(c))
		assert.True(t, usage.DailyCost.Equal(want), usage.DailyCost.String())
	}

	usage, err := svc.GetUsage(ctx, "u")
	require.NoError(t, err)
	assert.True(t, usage.DailyCost.Equal(d("0.13644")), usage.DailyCost.String())
	assert.True(t, usage.RemainingBudget.Equal(d("0.86356")))
	assert.True(t, usage.MaxRequestCost.Equal(d("0.10")))
}

func TestRecord_RejectsNegative(t *testing.T) {
	clock := &testClock{t: time.Now()}
	svc, _ := newTestService(t, clock)

	_, err := svc.Record(context.Background(), "u", d("-0.01"))
	assert.True(t, services.IsValidationError(err))
}

func TestDayBoundaryResets(t *testing.T) {
	tests := []struct {
		name  string
		later time.Time
		reset bool
	}{
		{"same day, hours later", time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC), false},
		{"next day, minutes later", time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC), true},
		{"many days later", time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &testClock{t: time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)}
			svc, repos := newTestService(t, clock)
			ctx := context.Background()

			_, err := svc.Record(ctx, "u", d("0.95"))
			require.NoError(t, err)

			clock.t = tt.later
			usage, err := svc.GetUsage(ctx, "u")
			require.NoError(t, err)
			if tt.reset {
				assert.True(t, usage.DailyCost.IsZero())
			} else {
				assert.True(t, usage.DailyCost.Equal(d("0.95")))
			}

			result, err := svc.CanSpend(ctx, "u", d("0.08"))
			require.NoError(t, err)
			assert.Equal(t, tt.reset, result.Allowed)

			// the reset is only persisted by the next Record
			usage, err = svc.Record(ctx, "u", d("0.01"))
			require.NoError(t, err)
			if tt.reset {
				assert.True(t, usage.DailyCost.Equal(d("0.01")))
				entry, err := repos.Ledger.Get(ctx, "u")
				require.NoError(t, err)
				assert.True(t, entry.LastResetAt.Equal(tt.later))
			} else {
				assert.True(t, usage.DailyCost.Equal(d("0.96")))
			}
		})
	}
}

func TestDayBoundaryFollowsLocation(t *testing.T) {
	loc := time.FixedZone("IST", 2*60*60)
	// 22:30 UTC on March 1 is already March 2 in loc
	clock := &testClock{t: time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock, WithLocation(loc))
	ctx := context.Background()

	_, err := svc.Record(ctx, "u", d("0.50"))
	require.NoError(t, err)

	clock.t = time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC)
	usage, err := svc.GetUsage(ctx, "u")
	require.NoError(t, err)
	assert.True(t, usage.DailyCost.IsZero(), "midnight passed in the ledger timezone")
}

func TestRemainingNeverNegative(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, repos := newTestService(t, clock)
	seed(t, repos, "u", "1.20", clock.t)

	usage, err := svc.GetUsage(context.Background(), "u")
	require.NoError(t, err)
	assert.True(t, usage.RemainingBudget.IsZero())
}
