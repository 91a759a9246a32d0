package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveOperation("take_exam", StatusOK, 20*time.Millisecond)
	r.ObserveOperation("take_exam", StatusOK, 30*time.Millisecond)
	r.ObserveOperation("take_exam", StatusError, time.Millisecond)
	r.IncJWKSFetch(StatusOK)
	r.IncScorePublication(StatusError)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operationsTotal.WithLabelValues("take_exam", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operationsTotal.WithLabelValues("take_exam", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jwksFetchesTotal.WithLabelValues(StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.scoresTotal.WithLabelValues(StatusError)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.operationDuration))

	n, err := testutil.GatherAndCount(reg, "lti_operations_total", "lti_score_publications_total")
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusError, StatusOf(errors.New("x")))
}

func TestNopIsARecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.ObserveOperation("x", StatusOK, time.Second)
	r.IncJWKSFetch(StatusOK)
	r.IncScorePublication(StatusOK)
}
