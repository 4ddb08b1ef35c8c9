package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration продолжительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// BurstsReceived пакеты, принятые в обработку
	BurstsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bursts_received_total",
			Help: "Total number of accelerometer bursts received",
		},
	)

	// VerdictsTotal вердикты по исходу
	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdicts_total",
			Help: "Total number of verdicts by outcome",
		},
		[]string{"outcome"},
	)

	// DetectionsRejected отклоненные пакеты по коду ошибки
	DetectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detections_rejected_total",
			Help: "Total number of bursts rejected by the pipeline",
		},
		[]string{"reason"},
	)

	// AnalysisLatency задержка анализа
	AnalysisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_latency_seconds",
			Help:    "Detection pipeline latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// FaultIndex последний fault index
	FaultIndex = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fault_index",
			Help: "Fault index of the last classified burst",
		},
	)

	// AxisSimilarity последнее сходство по осям
	AxisSimilarity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "axis_similarity",
			Help: "Cosine similarity to the normal reference for the last burst",
		},
		[]string{"axis"},
	)

	// ReferenceLoaded 1 после успешной загрузки эталона
	ReferenceLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reference_loaded",
			Help: "Whether reference templates are loaded (1) or not (0)",
		},
	)

	// QueueSize размер очереди обработки
	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "processing_queue_size",
			Help: "Current size of the processing queue",
		},
	)

	// RedisOperations операции с Redis
	RedisOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	// MQTTMessages сообщения MQTT
	MQTTMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_messages_total",
			Help: "Total number of MQTT messages handled",
		},
		[]string{"direction", "status"},
	)
)
