// Package metrics 提供 Prometheus helper，包含 HTTP 与撮池引擎业务指标
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/gdip/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal prometheus.Counter
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 认购成功计数
	PurchasesTotal prometheus.Counter
	// 认购失败计数
	AdmissionFailuresTotal prometheus.Counter
	// 槽位竞争重试计数
	SlotReservationRetriesTotal prometheus.Counter

	// 就绪集群数
	ClustersReady prometheus.Gauge
	// 运行中集群数
	ClustersActive prometheus.Gauge

	// 已启动交易周期计数
	CyclesStartedTotal prometheus.Counter
	// 已结算交易周期计数
	CyclesSettledTotal prometheus.Counter
	// 单周期结算耗时
	SettlementDuration prometheus.Histogram
	// 已发布派息事件计数
	PayoutsPublishedTotal prometheus.Counter
	// 不变量违规计数（周期重叠、容量超卖），非瞬时故障，需要告警
	InvariantViolationsTotal prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		PurchasesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "purchases_total",
			Help:      "Total successful TPIA purchases",
		}),
		AdmissionFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "admission_failures_total",
			Help:      "Total failed purchase admissions",
		}),
		SlotReservationRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "slot_reservation_retries_total",
			Help:      "Total slot reservation retries after lost races",
		}),

		ClustersReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "clusters_ready",
			Help:      "Number of clusters ready to trade",
		}),
		ClustersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "clusters_active",
			Help:      "Number of clusters with a running trade cycle",
		}),

		CyclesStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "cycles_started_total",
			Help:      "Total trade cycles started",
		}),
		CyclesSettledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "cycles_settled_total",
			Help:      "Total trade cycles settled",
		}),
		SettlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "settlement_duration_seconds",
			Help:      "Profit distribution duration per cycle in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PayoutsPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "payouts_published_total",
			Help:      "Total payout events published for the wallet system",
		}),
		InvariantViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdip",
			Subsystem: serviceName,
			Name:      "invariant_violations_total",
			Help:      "Total detected invariant violations (cycle overlap, capacity overshoot)",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PurchasesTotal,
		m.AdmissionFailuresTotal,
		m.SlotReservationRetriesTotal,
		m.ClustersReady,
		m.ClustersActive,
		m.CyclesStartedTotal,
		m.CyclesSettledTotal,
		m.SettlementDuration,
		m.PayoutsPublishedTotal,
		m.InvariantViolationsTotal,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "failed to register metric", "error", err)
			return err
		}
	}

	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) {
	if path == "" {
		path = "/metrics"
	}

	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "failed to start Prometheus HTTP server", "error", err)
		}
	}()
}
