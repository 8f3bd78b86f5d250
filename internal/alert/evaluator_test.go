package alert

import (
	"context"
	"testing"
	"time"

	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/notify/channel"
	"github.com/rivetr/rivetr/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func insertApp(t *testing.T, st *store.Store, id string) {
	t.Helper()
	now := time.Now().UTC().Format(store.TimeFormat)
	_, err := st.DB.Exec(`INSERT INTO apps (id, name, git_url, port, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, id+"-name", "https://example.test/"+id, 8080, now, now)
	require.NoError(t, err)
}

func insertGlobalDefault(t *testing.T, st *store.Store, metricType enum.MetricType, threshold float64, enabled bool) {
	t.Helper()
	_, err := st.DB.Exec(`INSERT INTO global_alert_defaults (metric_type, threshold_percent, enabled) VALUES (?, ?, ?)`,
		string(metricType), threshold, boolToInt(enabled))
	require.NoError(t, err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// fakeDispatcher records every enqueued message without delivering it.
type fakeDispatcher struct {
	messages []channel.Message
}

func (f *fakeDispatcher) Enqueue(ctx context.Context, msg channel.Message) {
	f.messages = append(f.messages, msg)
}

func TestEvaluateMetricSkipsWithoutAnyConfig(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	e := New(st, nil, "")

	require.NoError(t, e.evaluateMetric(context.Background(), "app1", enum.MetricTypeCPU, 95))

	active, err := st.ActiveAlertEvent(context.Background(), "app1", enum.MetricTypeCPU)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestEvaluateMetricRequiresTwoConsecutiveBreachesToFire(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertGlobalDefault(t, st, enum.MetricTypeCPU, 80, true)

	disp := &fakeDispatcher{}
	e := New(st, disp, "https://dashboard.example")
	ctx := context.Background()

	require.NoError(t, e.evaluateMetric(ctx, "app1", enum.MetricTypeCPU, 90))
	active, err := st.ActiveAlertEvent(ctx, "app1", enum.MetricTypeCPU)
	require.NoError(t, err)
	require.Nil(t, active, "a single breach must not fire yet")
	require.Empty(t, disp.messages)

	require.NoError(t, e.evaluateMetric(ctx, "app1", enum.MetricTypeCPU, 92))
	active, err = st.ActiveAlertEvent(ctx, "app1", enum.MetricTypeCPU)
	require.NoError(t, err)
	require.NotNil(t, active, "the second consecutive breach must fire")
	require.Len(t, disp.messages, 1)
}

func TestEvaluateMetricResolvesWhenBackBelowThreshold(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertGlobalDefault(t, st, enum.MetricTypeCPU, 80, true)

	disp := &fakeDispatcher{}
	e := New(st, disp, "")
	ctx := context.Background()

	require.NoError(t, e.evaluateMetric(ctx, "app1", enum.MetricTypeCPU, 90))
	require.NoError(t, e.evaluateMetric(ctx, "app1", enum.MetricTypeCPU, 92))
	active, err := st.ActiveAlertEvent(ctx, "app1", enum.MetricTypeCPU)
	require.NoError(t, err)
	require.NotNil(t, active)

	require.NoError(t, e.evaluateMetric(ctx, "app1", enum.MetricTypeCPU, 50))
	active, err = st.ActiveAlertEvent(ctx, "app1", enum.MetricTypeCPU)
	require.NoError(t, err)
	require.Nil(t, active, "falling back below threshold must resolve the firing event")
	require.Len(t, disp.messages, 2, "expect one firing and one resolved notification")
}

func TestEvaluateMetricDisabledAutoResolvesWithoutTouchingBreachCount(t *testing.T) {
	st := newTestStore(t)
	insertApp(t, st, "app1")
	insertGlobalDefault(t, st, enum.MetricTypeCPU, 80, true)

	e := New(st, nil, "")
	ctx := context.Background()

	require.NoError(t, e.evaluateMetric(ctx, "app1", enum.MetricTypeCPU, 90))
	require.NoError(t, e.evaluateMetric(ctx, "app1", enum.MetricTypeCPU, 92))
	active, err := st.ActiveAlertEvent(ctx, "app1", enum.MetricTypeCPU)
	require.NoError(t, err)
	require.NotNil(t, active)

	_, err = st.DB.Exec(`UPDATE global_alert_defaults SET enabled = 0 WHERE metric_type = ?`, string(enum.MetricTypeCPU))
	require.NoError(t, err)

	require.NoError(t, e.evaluateMetric(ctx, "app1", enum.MetricTypeCPU, 95))
	active, err = st.ActiveAlertEvent(ctx, "app1", enum.MetricTypeCPU)
	require.NoError(t, err)
	require.Nil(t, active, "disabling the metric must auto-resolve the stale firing event")

	k, err := st.IncrementBreachCount(ctx, "app1", enum.MetricTypeCPU)
	require.NoError(t, err)
	require.Equal(t, 3, k, "breach count must be untouched by the disabled-metric path")
}

func TestSafePercentGuardsZeroLimit(t *testing.T) {
	_, ok := safePercent(100, 0)
	require.False(t, ok)

	pct, ok := safePercent(50, 200)
	require.True(t, ok)
	require.Equal(t, 25.0, pct)
}
