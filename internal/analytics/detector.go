package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vibration-monitor/internal/errors"
	"vibration-monitor/internal/metrics"
	"vibration-monitor/internal/models"
)

// TemplateProvider источник эталонных спектров
type TemplateProvider interface {
	Load(ctx context.Context) (*models.ReferenceTemplate, error)
	Ready() bool
}

// Options параметры конвейера
type Options struct {
	MaxMeasurements int
	Threshold       float64
	MaxReadings     int
	QueueSize       int
}

// DefaultOptions значения по умолчанию
func DefaultOptions() Options {
	return Options{
		MaxMeasurements: DefaultMaxMeasurements,
		Threshold:       DefaultAnomalyThreshold,
		MaxReadings:     DefaultMaxReadings,
		QueueSize:       16,
	}
}

// Detector принимает пакеты и прогоняет их через конвейер в пуле воркеров
type Detector struct {
	store    TemplateProvider
	opts     Options
	log      zerolog.Logger
	jobs     chan job
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	workers   atomic.Int32
	processed atomic.Int64
	anomalies atomic.Int64
	rejected  atomic.Int64
}

type job struct {
	ctx      context.Context
	payload  []byte
	received time.Time
	reply    chan jobResult
}

type jobResult struct {
	verdict *models.Verdict
	err     error
}

// NewDetector создает детектор
func NewDetector(store TemplateProvider, opts Options, log zerolog.Logger) *Detector {
	def := DefaultOptions()
	if opts.MaxMeasurements <= 0 {
		opts.MaxMeasurements = def.MaxMeasurements
	}
	if opts.MaxReadings <= 0 {
		opts.MaxReadings = def.MaxReadings
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}

	return &Detector{
		store:    store,
		opts:     opts,
		log:      log.With().Str("component", "detector").Logger(),
		jobs:     make(chan job, opts.QueueSize),
		stopChan: make(chan struct{}),
	}
}

// Start запускает воркеры. Один воркер обрабатывает пакеты строго по очереди.
func (d *Detector) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		d.workers.Add(1)
		go d.processJobs()
	}
}

// Stop останавливает воркеры и ждет их завершения
func (d *Detector) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopChan)
	})
	d.wg.Wait()
}

// Ready true, когда эталон загружен и детектор принимает пакеты
func (d *Detector) Ready() bool {
	select {
	case <-d.stopChan:
		return false
	default:
	}
	return d.store.Ready()
}

// Submit обрабатывает один пакет и возвращает вердикт или типизированную ошибку.
// Без запущенных воркеров пакет обрабатывается в вызывающей goroutine.
func (d *Detector) Submit(ctx context.Context, payload []byte) (*models.Verdict, error) {
	received := time.Now()

	select {
	case <-d.stopChan:
		return nil, errors.ErrStopped
	default:
	}

	if d.workers.Load() == 0 {
		return d.process(ctx, payload, received)
	}

	j := job{ctx: ctx, payload: payload, received: received, reply: make(chan jobResult, 1)}
	select {
	case d.jobs <- j:
		metrics.QueueSize.Set(float64(len(d.jobs)))
	case <-d.stopChan:
		return nil, errors.ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// очередь заполнена, отказываем сразу
		d.reject(errors.ErrQueueFull)
		return nil, errors.New(errors.CodeQueueFull, "%d bursts already queued", cap(d.jobs))
	}

	select {
	case res := <-j.reply:
		return res.verdict, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.stopChan:
		return nil, errors.ErrStopped
	}
}

// processJobs обрабатывает пакеты из очереди
func (d *Detector) processJobs() {
	defer d.wg.Done()
	defer d.workers.Add(-1)

	for {
		select {
		case <-d.stopChan:
			return
		case j := <-d.jobs:
			metrics.QueueSize.Set(float64(len(d.jobs)))
			if err := j.ctx.Err(); err != nil {
				j.reply <- jobResult{err: err}
				continue
			}
			v, err := d.process(j.ctx, j.payload, j.received)
			j.reply <- jobResult{verdict: v, err: err}
		}
	}
}

// process выполняет конвейер для одного пакета
func (d *Detector) process(ctx context.Context, payload []byte, received time.Time) (*models.Verdict, error) {
	start := time.Now()
	defer func() {
		metrics.AnalysisLatency.Observe(time.Since(start).Seconds())
	}()

	metrics.BurstsReceived.Inc()

	tmpl, err := d.store.Load(ctx)
	if err != nil {
		d.reject(err)
		return nil, err
	}

	verdict, err := Detect(payload, tmpl, d.opts)
	if err != nil {
		d.reject(err)
		d.log.Debug().Err(err).Int("bytes", len(payload)).Msg("burst rejected")
		return nil, err
	}

	verdict.ID = uuid.NewString()
	verdict.ReceivedAt = received

	d.processed.Add(1)
	metrics.VerdictsTotal.WithLabelValues(verdict.Outcome.String()).Inc()
	metrics.FaultIndex.Set(verdict.FaultIndex)
	metrics.AxisSimilarity.WithLabelValues("x").Set(verdict.Similarity.X)
	metrics.AxisSimilarity.WithLabelValues("y").Set(verdict.Similarity.Y)
	metrics.AxisSimilarity.WithLabelValues("z").Set(verdict.Similarity.Z)

	event := d.log.Info()
	if verdict.IsAnomaly() {
		d.anomalies.Add(1)
		event = d.log.Warn()
	}
	event.
		Str("id", verdict.ID).
		Str("outcome", verdict.Outcome.String()).
		Float64("cos_x", verdict.Similarity.X).
		Float64("cos_y", verdict.Similarity.Y).
		Float64("cos_z", verdict.Similarity.Z).
		Float64("fault_index", verdict.FaultIndex).
		Float64("threshold", verdict.Threshold).
		Msg("burst classified")

	return verdict, nil
}

func (d *Detector) reject(err error) {
	d.rejected.Add(1)
	code, ok := errors.CodeOf(err)
	if !ok {
		code = "internal"
	}
	metrics.DetectionsRejected.WithLabelValues(string(code)).Inc()
}

// Detect чистая функция конвейера: разбор, спектр, сравнение с нормальным эталоном, порог
func Detect(payload []byte, tmpl *models.ReferenceTemplate, opts Options) (*models.Verdict, error) {
	if tmpl == nil {
		return nil, errors.New(errors.CodeReferenceUnavailable, "no reference template")
	}

	if opts.MaxMeasurements <= 0 {
		opts.MaxMeasurements = DefaultMaxMeasurements
	}

	sample, err := DecodeSample(payload, opts.MaxReadings)
	if err != nil {
		return nil, err
	}

	features, err := ExtractFeatures(sample, opts.MaxMeasurements)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDecode, err, "feature extraction")
	}

	score, err := Score(features, tmpl.Normal)
	if err != nil {
		return nil, err
	}

	verdict := Classify(score, opts.Threshold)
	verdict.Measurements = min(len(sample), opts.MaxMeasurements)
	return &verdict, nil
}

// GetStats возвращает статистику детектора
func (d *Detector) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"workers":          int(d.workers.Load()),
		"queue_size":       len(d.jobs),
		"queue_capacity":   cap(d.jobs),
		"processed":        d.processed.Load(),
		"anomalies":        d.anomalies.Load(),
		"rejected":         d.rejected.Load(),
		"threshold":        d.opts.Threshold,
		"max_measurements": d.opts.MaxMeasurements,
		"reference_ready":  d.store.Ready(),
	}
}
