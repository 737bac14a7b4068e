package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersExposed(t *testing.T) {
	m := New("expohub")
	m.ReactionToggles.WithLabelValues("like", "ok").Inc()
	m.ReactionToggles.WithLabelValues("like", "ok").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReactionToggles.WithLabelValues("like", "ok")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "expohub_reaction_toggles_total")
}

func TestAuthEventsBySubject(t *testing.T) {
	m := New("expohub")
	m.AuthEvents.WithLabelValues("auth.signed_in").Inc()
	m.AuthEvents.WithLabelValues("auth.signed_out").Inc()
	m.AuthEvents.WithLabelValues("auth.signed_in").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthEvents.WithLabelValues("auth.signed_in")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.AuthEvents))
}
