package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAgent(t *testing.T) {
	m := New("agentpm")
	m.ObserveAgent("product_manager", time.Second, nil)
	m.ObserveAgent("product_manager", time.Second, errors.New("x"))
	m.ObserveAgent("reviewer", time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentInvocations.WithLabelValues("product_manager", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentInvocations.WithLabelValues("product_manager", "error")))
}

func TestIndependentRegistries(t *testing.T) {
	// 每个实例独立注册，重复创建不会 panic
	a := New("agentpm")
	b := New("agentpm")
	a.ObservePhase("idea", "discovery", "definition")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.PhaseTransitions.WithLabelValues("idea", "discovery", "definition")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PhaseTransitions.WithLabelValues("idea", "discovery", "definition")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAgent("a", time.Second, nil)
	m.ObserveDocument("prd", "completed", time.Second, true, true)
	m.ObservePhase("idea", "a", "b")
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("agentpm")
	m.ObserveDocument("prd", "completed", time.Second, true, false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `agentpm_documents_generated_total{kind="prd",status="completed"} 1`))
	assert.True(t, strings.Contains(body, `agentpm_document_validation_total{kind="prd",passed="false"} 1`))
}
