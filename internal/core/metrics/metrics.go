// Package metrics 提供客户端 Prometheus 指标
//
// 每个 DB 实例拥有独立的指标集合。默认注册到私有 Registry，
// 通过 DB.Gatherer() 暴露；也可以通过 WithMetricsRegisterer 注册到外部 Registerer，
// 此时用 client 常量标签区分同一进程内的多个实例。
//
// 所有方法对 nil *Metrics 安全（指标被禁用时）。
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-liquiddb/config"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

const subsystem = "client"

// Instance 实例标识，作为 client 常量标签
type Instance string

// Metrics 客户端指标
type Metrics struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	namespace  string
	labels     prometheus.Labels

	reconnects        prometheus.Counter
	heartbeatTimeouts prometheus.Counter
	protocolErrors    prometheus.Counter
	messagesSent      *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	bytesSent         prometheus.Counter
	bytesReceived     prometheus.Counter
	opsDispatched     *prometheus.CounterVec
	state             prometheus.Gauge
	pendingWrites     prometheus.Gauge
	writeLatency      prometheus.Histogram
}

// New 创建并注册指标
//
// cfg.Enabled 为 false 时返回 nil。reg 为 nil 时使用私有 Registry。
func New(cfg config.MetricsConfig, reg prometheus.Registerer, instance Instance) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	m := &Metrics{namespace: cfg.Namespace}
	if reg == nil {
		private := prometheus.NewRegistry()
		m.registerer, m.gatherer = private, private
	} else {
		m.registerer = reg
		if g, ok := reg.(prometheus.Gatherer); ok {
			m.gatherer = g
		}
	}
	if instance != "" {
		m.labels = prometheus.Labels{"client": string(instance)}
	}

	m.reconnects = prometheus.NewCounter(m.counterOpts("reconnects_total", "Total number of successful reconnects"))
	m.heartbeatTimeouts = prometheus.NewCounter(m.counterOpts("heartbeat_timeouts_total", "Total number of heartbeat timeouts"))
	m.protocolErrors = prometheus.NewCounter(m.counterOpts("protocol_errors_total", "Total malformed server messages dropped"))
	m.messagesSent = prometheus.NewCounterVec(m.counterOpts("messages_sent_total", "Total messages sent by type"), []string{"type"})
	m.messagesReceived = prometheus.NewCounterVec(m.counterOpts("messages_received_total", "Total messages received by type"), []string{"type"})
	m.bytesSent = prometheus.NewCounter(m.counterOpts("bytes_sent_total", "Total bytes written to the channel"))
	m.bytesReceived = prometheus.NewCounter(m.counterOpts("bytes_received_total", "Total bytes read from the channel"))
	m.opsDispatched = prometheus.NewCounterVec(m.counterOpts("operations_dispatched_total", "Total classified operations dispatched by kind"), []string{"kind"})
	m.state = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   subsystem,
		Name:        "connection_state",
		Help:        "Current connection state (0=disconnected 1=connecting 2=connected 3=heartbeat-timeout 4=reconnecting 5=closed)",
		ConstLabels: m.labels,
	})
	m.pendingWrites = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   subsystem,
		Name:        "pending_writes",
		Help:        "Writes waiting for the server echo",
		ConstLabels: m.labels,
	})
	m.writeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   subsystem,
		Name:        "write_duration_seconds",
		Help:        "Write round-trip duration until the server echo",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		ConstLabels: m.labels,
	})

	collectors := []prometheus.Collector{
		m.reconnects, m.heartbeatTimeouts, m.protocolErrors,
		m.messagesSent, m.messagesReceived, m.bytesSent, m.bytesReceived,
		m.opsDispatched, m.state, m.pendingWrites, m.writeLatency,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.labels,
	}
}

// WatchSubscriptions 注册订阅数量 GaugeFunc
func (m *Metrics) WatchSubscriptions(count func() int) error {
	if m == nil {
		return nil
	}
	return m.registerOnce(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   subsystem,
		Name:        "subscriptions",
		Help:        "Registered path subscriptions",
		ConstLabels: m.labels,
	}, func() float64 { return float64(count()) }))
}

// WatchDroppedEvents 注册事件总线丢弃计数 CounterFunc
func (m *Metrics) WatchDroppedEvents(count func() int64) error {
	if m == nil {
		return nil
	}
	return m.registerOnce(prometheus.NewCounterFunc(
		m.counterOpts("events_dropped_total", "Total lifecycle events dropped because a subscriber buffer was full"),
		func() float64 { return float64(count()) },
	))
}

// registerOnce 注册采集器，重复注册视为成功
func (m *Metrics) registerOnce(c prometheus.Collector) error {
	err := m.registerer.Register(c)
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return nil
	}
	return err
}

// Gatherer 返回可采集的 Gatherer（外部 Registerer 不支持采集时为 nil）
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.gatherer
}

// ============================================================================
//                              记录方法
// ============================================================================

// Reconnected 记录一次成功重连
func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// HeartbeatTimeout 记录一次心跳超时
func (m *Metrics) HeartbeatTimeout() {
	if m == nil {
		return
	}
	m.heartbeatTimeouts.Inc()
}

// ProtocolError 记录一条被丢弃的畸形消息
func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

// MessageSent 记录发送的消息
func (m *Metrics) MessageSent(msgType string, size int) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(msgType).Inc()
	m.bytesSent.Add(float64(size))
}

// MessageReceived 记录收到的消息
func (m *Metrics) MessageReceived(msgType string, size int) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(msgType).Inc()
	m.bytesReceived.Add(float64(size))
}

// OperationDispatched 记录分发的操作
func (m *Metrics) OperationDispatched(kind types.OpKind) {
	if m == nil {
		return
	}
	m.opsDispatched.WithLabelValues(kind.String()).Inc()
}

// SetState 记录连接状态
func (m *Metrics) SetState(s types.ConnectionState) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

// SetPendingWrites 记录待确认写入数量
func (m *Metrics) SetPendingWrites(n int) {
	if m == nil {
		return
	}
	m.pendingWrites.Set(float64(n))
}

// ObserveWrite 记录写入往返耗时
func (m *Metrics) ObserveWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.writeLatency.Observe(d.Seconds())
}
