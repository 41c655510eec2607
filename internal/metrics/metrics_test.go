package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Poll("messages", nil)
	m.Poll("messages", errors.New("boom"))
	m.Poll("messages", nil)
	m.Alerts("notifications", 3)
	m.Alerts("notifications", 0)
	m.Mutation("notifications", "delete", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.polls.WithLabelValues("messages", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("messages", ResultError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.alerts.WithLabelValues("notifications")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("notifications", "delete", ResultError)))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Poll("messages", nil)
	m.Alerts("messages", 1)
	m.Mutation("messages", "delete", nil)
	m.Page(nil)
	m.Send(nil)
}
