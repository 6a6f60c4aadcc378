package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/eggmigrate/migration"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.Registry())
	assert.NotNil(t, collector.operationsTotal)
	assert.NotNil(t, collector.runsTotal)

	// 两个收集器使用相同 namespace 也不会冲突
	assert.NotPanics(t, func() {
		NewCollector("eggmigrate", nil)
		NewCollector("eggmigrate", nil)
	})
}

func TestCollector_PlanCreated(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.PlanCreated(3, 2, 20*time.Millisecond)
	collector.PlanCreated(5, 1, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.plansTotal))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.clustersPlanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.schedulesPlanned))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.planDuration))
}

func TestCollector_OperationExecuted(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.OperationExecuted(migration.PhaseAlter, time.Millisecond, nil)
	collector.OperationExecuted(migration.PhaseAlter, time.Millisecond, nil)
	collector.OperationExecuted(migration.PhaseData, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.operationsTotal.WithLabelValues("alter", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.operationsTotal.WithLabelValues("data", "failure")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.operationDuration))
}

func TestCollector_RecordRun(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRun(time.Second, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.lastRunSuccess))

	collector.RecordRun(time.Second, errors.New("boom"))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.lastRunSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.runsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.runsTotal.WithLabelValues("failure")))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections("postgres", 3, 1)

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_WriteTextfile(t *testing.T) {
	namespace := nextTestNamespace()
	collector := NewCollector(namespace, zap.NewNop())
	collector.RecordRun(2*time.Second, nil)

	path := filepath.Join(t.TempDir(), "eggmigrate.prom")
	require.NoError(t, collector.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), namespace+`_runs_total{status="success"} 1`))

	assert.Error(t, collector.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")))
}

func TestCollector_ObservesPlan(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	plan := migration.NewPlan(nil, nil, migration.WithObserver(collector))

	require.NoError(t, plan.DoPlanning(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.plansTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.clustersPlanned))
}
