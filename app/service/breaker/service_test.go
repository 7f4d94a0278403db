package breaker

import (
	"testing"
	"time"

	"pawdesk/app/service/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(threshold int, recovery time.Duration) (*Service, *time.Time) {
	svc := NewWithOptions(threshold, recovery, 10*time.Minute)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return svc, &now
}

func TestOpensAfterThreshold(t *testing.T) {
	svc, _ := newTestService(3, 30*time.Second)

	svc.ReportFailure("acme", "book_appointment")
	svc.ReportFailure("acme", "book_appointment")
	require.NoError(t, svc.Allow("acme", "book_appointment"))
	assert.Equal(t, StateClosed, svc.StateOf("acme", "book_appointment"))

	svc.ReportFailure("acme", "book_appointment")
	assert.Equal(t, StateOpen, svc.StateOf("acme", "book_appointment"))

	err := svc.Allow("acme", "book_appointment")
	require.Error(t, err)
	assert.Equal(t, tools.CodeCircuitOpen, tools.CodeOf(err))
}

func TestSuccessResetsFailureCount(t *testing.T) {
	svc, _ := newTestService(3, 30*time.Second)

	svc.ReportFailure("acme", "book_appointment")
	svc.ReportFailure("acme", "book_appointment")
	svc.ReportSuccess("acme", "book_appointment")
	svc.ReportFailure("acme", "book_appointment")
	svc.ReportFailure("acme", "book_appointment")

	assert.Equal(t, StateClosed, svc.StateOf("acme", "book_appointment"))
	require.NoError(t, svc.Allow("acme", "book_appointment"))
}

func TestTenantIsolation(t *testing.T) {
	svc, _ := newTestService(1, 30*time.Second)

	svc.ReportFailure("acme", "book_appointment")

	assert.Equal(t, StateOpen, svc.StateOf("acme", "book_appointment"))
	require.Error(t, svc.Allow("acme", "book_appointment"))

	require.NoError(t, svc.Allow("globex", "book_appointment"))
	require.NoError(t, svc.Allow("acme", "list_services"))
}

func TestHalfOpenProbeRecovers(t *testing.T) {
	svc, now := newTestService(1, 30*time.Second)

	svc.ReportFailure("acme", "check_availability")
	require.Error(t, svc.Allow("acme", "check_availability"))

	*now = now.Add(31 * time.Second)

	// one probe is admitted, concurrent calls are rejected
	require.NoError(t, svc.Allow("acme", "check_availability"))
	assert.Equal(t, StateHalfOpen, svc.StateOf("acme", "check_availability"))
	require.Error(t, svc.Allow("acme", "check_availability"))

	svc.ReportSuccess("acme", "check_availability")
	assert.Equal(t, StateClosed, svc.StateOf("acme", "check_availability"))
	require.NoError(t, svc.Allow("acme", "check_availability"))
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	svc, now := newTestService(1, 30*time.Second)

	svc.ReportFailure("acme", "check_availability")
	*now = now.Add(31 * time.Second)
	require.NoError(t, svc.Allow("acme", "check_availability"))

	svc.ReportFailure("acme", "check_availability")
	assert.Equal(t, StateOpen, svc.StateOf("acme", "check_availability"))
	require.Error(t, svc.Allow("acme", "check_availability"))

	// the recovery window restarts from the probe failure
	*now = now.Add(31 * time.Second)
	require.NoError(t, svc.Allow("acme", "check_availability"))
}

func TestSweepReclaimsHealthyAndStale(t *testing.T) {
	svc, now := newTestService(3, 30*time.Second)

	svc.ReportFailure("acme", "book_appointment")
	svc.ReportSuccess("acme", "book_appointment")

	svc.ReportFailure("acme", "cancel_appointment")
	svc.ReportFailure("acme", "cancel_appointment")
	svc.ReportFailure("acme", "cancel_appointment")
	require.Equal(t, 2, svc.Len())

	// healthy closed breaker goes, the open one stays
	assert.Equal(t, 1, svc.Sweep())
	assert.Equal(t, 1, svc.Len())
	assert.Equal(t, StateOpen, svc.StateOf("acme", "cancel_appointment"))

	// untouched past retention, the open one goes too
	*now = now.Add(11 * time.Minute)
	assert.Equal(t, 1, svc.Sweep())
	assert.Equal(t, 0, svc.Len())
}
