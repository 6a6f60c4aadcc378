// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/eggmigrate/migration"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，实现 migration.Observer
type Collector struct {
	registry *prometheus.Registry

	// 规划指标
	plansTotal       prometheus.Counter
	planDuration     prometheus.Histogram
	clustersPlanned  prometheus.Gauge
	schedulesPlanned prometheus.Gauge

	// 执行指标
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// 运行指标
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	lastRunSuccess prometheus.Gauge

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

var _ migration.Observer = (*Collector)(nil)

// NewCollector 创建指标收集器。指标注册在收集器自己的 Registry 上。
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger.With(zap.String("component", "metrics")),
	}
	factory := promauto.With(c.registry)

	// 规划指标
	c.plansTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "plans_total",
		Help:      "Total number of migration plans created",
	})

	c.planDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "plan_duration_seconds",
		Help:      "Time spent planning a migration",
		Buckets:   prometheus.DefBuckets,
	})

	c.clustersPlanned = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "plan_clusters",
		Help:      "Number of dependency clusters in the last plan",
	})

	c.schedulesPlanned = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "plan_schedules",
		Help:      "Number of top-level schedules in the last plan",
	})

	// 执行指标
	c.operationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of scheduled operations executed",
		},
		[]string{"phase", "status"},
	)

	c.operationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Scheduled operation duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"phase"},
	)

	// 运行指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of migrate runs",
		},
		[]string{"status"},
	)

	c.runDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Migrate run duration in seconds",
		Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900, 3600},
	})

	c.lastRunSuccess = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_success",
		Help:      "1 if the last migrate run succeeded, 0 otherwise",
	})

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// Registry 返回收集器使用的 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// =============================================================================
// 🧭 规划与执行指标
// =============================================================================

// PlanCreated 记录一次成功的规划
func (c *Collector) PlanCreated(clusters, schedules int, duration time.Duration) {
	c.plansTotal.Inc()
	c.planDuration.Observe(duration.Seconds())
	c.clustersPlanned.Set(float64(clusters))
	c.schedulesPlanned.Set(float64(schedules))
}

// OperationExecuted 记录一个已执行的操作
func (c *Collector) OperationExecuted(phase migration.Phase, duration time.Duration, err error) {
	c.operationsTotal.WithLabelValues(string(phase), status(err)).Inc()
	c.operationDuration.WithLabelValues(string(phase)).Observe(duration.Seconds())
}

// RecordRun 记录一次完整的 migrate 运行
func (c *Collector) RecordRun(duration time.Duration, err error) {
	c.runsTotal.WithLabelValues(status(err)).Inc()
	c.runDuration.Observe(duration.Seconds())
	if err != nil {
		c.lastRunSuccess.Set(0)
	} else {
		c.lastRunSuccess.Set(1)
	}
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 📝 导出
// =============================================================================

// WriteTextfile 将当前指标写入 node_exporter textfile collector 可读取的文件
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	c.logger.Debug("metrics written", zap.String("path", path))
	return nil
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// status 将错误转换为 label 值
func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
