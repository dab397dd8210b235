package housekeeping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenbank/onboarding/internal/customer"
	"github.com/lumenbank/onboarding/internal/metrics"
	"github.com/lumenbank/onboarding/internal/staging"
)

type failingPurger struct{}

func (failingPurger) PurgeOlderThan(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database unavailable")
}

func purgedTotal(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "onboarding_reaper_purged_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestReaperPurgesExpiredSignups(t *testing.T) {
	ctx := context.Background()
	store := staging.NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, staging.PendingSignup{IdentityID: "a", Form: customer.Form{Email: "a@b.com"}}))
	require.NoError(t, store.Upsert(ctx, staging.PendingSignup{IdentityID: "b", Form: customer.Form{Email: "b@b.com"}}))

	reg := prometheus.NewRegistry()
	reaper, err := NewReaper(store, "@hourly", 24*time.Hour, metrics.NewSignup(reg, "test"), nil)
	require.NoError(t, err)

	n, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh signups are kept")
	assert.Equal(t, 2, store.Len())

	reaper.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err = reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Zero(t, store.Len())
	assert.Equal(t, 2.0, purgedTotal(t, reg))
}

func TestReaperReportsPurgeErrors(t *testing.T) {
	reaper, err := NewReaper(failingPurger{}, "@every 1h", time.Hour, nil, nil)
	require.NoError(t, err)
	_, err = reaper.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestReaperRejectsBadSchedule(t *testing.T) {
	_, err := NewReaper(failingPurger{}, "every tuesday", time.Hour, nil, nil)
	assert.Error(t, err)

	_, err = NewReaper(failingPurger{}, "@hourly", 0, nil, nil)
	assert.Error(t, err)
}

func TestReaperStartStop(t *testing.T) {
	reaper, err := NewReaper(staging.NewMemoryStore(), "@hourly", time.Hour, nil, nil)
	require.NoError(t, err)
	reaper.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reaper.Stop(ctx)
}
