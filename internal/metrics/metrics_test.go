package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/contentcrew/internal/supervisor"
	"github.com/user/contentcrew/internal/types"
)

func TestHooksRecord(t *testing.T) {
	m := New()
	h := m.Hooks()

	h.OnDecision("s1", types.Decision{Kind: types.DecideResearch})
	h.OnDecision("s1", types.Decision{Kind: types.DecideResearch})
	h.OnDecision("s1", types.Decision{Kind: types.DecideFinish})
	h.OnHandoff("s1", types.AgentResearcher, 2*time.Second, nil)
	h.OnHandoff("s1", types.AgentCopywriter, time.Second, errors.New("boom"))
	h.OnFinish(&types.Outcome{Status: types.StatusTruncated})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues(string(types.DecideResearch))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues(string(types.DecideFinish))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues(string(types.StatusTruncated))))
	assert.Equal(t, 2, testutil.CollectAndCount(m.handoffs))
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetQueued(3)
	m.Hooks().OnFinish(&types.Outcome{Status: types.StatusCompleted})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `contentcrew_sessions_total{status="completed"} 1`)
	assert.Contains(t, string(body), "contentcrew_queued_runs 3")
}

func TestChain(t *testing.T) {
	var calls []string
	a := supervisor.Hooks{OnFinish: func(*types.Outcome) { calls = append(calls, "a") }}
	b := supervisor.Hooks{
		OnFinish:   func(*types.Outcome) { calls = append(calls, "b") },
		OnDecision: func(types.SessionID, types.Decision) { calls = append(calls, "b-decision") },
	}
	h := Chain(a, b)
	h.OnDecision("s", types.Decision{})
	h.OnHandoff("s", types.AgentResearcher, 0, nil)
	h.OnFinish(&types.Outcome{})
	assert.Equal(t, "b-decision,a,b", strings.Join(calls, ","))
}
