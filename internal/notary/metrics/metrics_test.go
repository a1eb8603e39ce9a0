package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementRecordCreated("commitment")
	m.IncrementRecordCreated("commitment")
	m.IncrementRecordCreated("attestation")
	m.IncrementFailure("create_attestation", "not_whitelisted")
	m.ObserveOperation("create_commitment", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsCreated.WithLabelValues("commitment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsCreated.WithLabelValues("attestation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationFailures.WithLabelValues("create_attestation", "not_whitelisted")))

	n, err := testutil.GatherAndCount(reg, "credentia_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
