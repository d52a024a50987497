package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnerfast/learnerfast/internal/pkg/payments"
)

type fakeReconciler struct {
	olderThan time.Duration
	limit     int
	calls     int
	err       error
}

func (f *fakeReconciler) ReconcilePending(_ context.Context, olderThan time.Duration, limit int) (payments.ReconcileReport, error) {
	f.calls++
	f.olderThan, f.limit = olderThan, limit
	return payments.ReconcileReport{Checked: 1}, f.err
}

type fakeRechecker struct {
	calls int
}

func (f *fakeRechecker) RecheckPending(context.Context) (int, int, error) {
	f.calls++
	return 2, 1, nil
}

func TestSchedulesParse(t *testing.T) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, spec := range []string{ReconcileSchedule, DomainRecheckSchedule} {
		_, err := parser.Parse(spec)
		require.NoError(t, err, spec)
	}
}

func TestStartRegistersConfiguredJobs(t *testing.T) {
	m := NewManager(&fakeReconciler{}, &fakeRechecker{}, Config{}, nil)
	require.NoError(t, m.Start())
	defer m.Stop()
	assert.Len(t, m.cron.Entries(), 2)

	only := NewManager(&fakeReconciler{}, nil, Config{}, nil)
	require.NoError(t, only.Start())
	defer only.Stop()
	assert.Len(t, only.cron.Entries(), 1)
}

func TestReconcilePaymentsUsesConfiguredAge(t *testing.T) {
	r := &fakeReconciler{}
	m := NewManager(r, nil, Config{ReconcileAfter: 20 * time.Minute}, nil)
	m.ReconcilePayments()

	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 20*time.Minute, r.olderThan)
	assert.Equal(t, reconcileBatch, r.limit)

	r.err = errors.New("boom")
	m.ReconcilePayments()
	assert.Equal(t, 2, r.calls)
}

func TestDefaultReconcileAge(t *testing.T) {
	r := &fakeReconciler{}
	NewManager(r, nil, Config{}, nil).ReconcilePayments()
	assert.Equal(t, 15*time.Minute, r.olderThan)
}

func TestRecheckDomains(t *testing.T) {
	d := &fakeRechecker{}
	NewManager(nil, d, Config{}, nil).RecheckDomains()
	assert.Equal(t, 1, d.calls)
}
