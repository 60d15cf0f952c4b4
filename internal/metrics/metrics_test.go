package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/faculty-map/internal/world"
)

func newAgents(t *testing.T) *world.Registry {
	t.Helper()
	reg, err := world.NewRegistry([]world.Agent{
		{ID: "A", Name: "Alpha"},
		{ID: "B", Name: "Beta"},
	}, time.Now(), zap.NewNop())
	require.NoError(t, err)
	return reg
}

func TestAfterTick(t *testing.T) {
	agents := newAgents(t)
	c := New(agents)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.byStatus.WithLabelValues(string(world.StatusFree))))

	agents.SetStatus("A", world.StatusAbsent)
	c.AfterTick(context.Background(), world.TickReport{
		Processed: 1,
		Failed:    1,
		Duration:  time.Millisecond,
		Changes:   []world.StatusChange{{AgentID: "A", From: world.StatusFree, To: world.StatusAbsent}},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues(string(world.StatusAbsent))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.byStatus.WithLabelValues(string(world.StatusAbsent))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.byStatus.WithLabelValues(string(world.StatusFree))))
}

func TestHandler(t *testing.T) {
	c := New(newAgents(t))
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "facultymap_ticks_total"))
	assert.True(t, strings.Contains(body, `facultymap_agents{status="Free"} 2`))
}
