package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibration-monitor/internal/errors"
	"vibration-monitor/internal/models"
	"vibration-monitor/internal/testutil"
)

type staticStore struct {
	tmpl  *models.ReferenceTemplate
	err   error
	ready bool
}

func (s *staticStore) Load(context.Context) (*models.ReferenceTemplate, error) {
	return s.tmpl, s.err
}

func (s *staticStore) Ready() bool { return s.ready }

// blockingStore держит Load до закрытия release
type blockingStore struct {
	tmpl    *models.ReferenceTemplate
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingStore) Load(ctx context.Context) (*models.ReferenceTemplate, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.tmpl, nil
}

func (s *blockingStore) Ready() bool { return true }

func sineTemplate(t *testing.T) *models.ReferenceTemplate {
	t.Helper()
	normal, err := ExtractFeatures(testutil.SineSample(8, 128), 128)
	require.NoError(t, err)
	abnormal, err := ExtractFeatures(testutil.NoiseSample(99, 128), 128)
	require.NoError(t, err)
	return &models.ReferenceTemplate{Normal: normal, Abnormal: abnormal}
}

func newTestDetector(t *testing.T, store TemplateProvider, workers int) *Detector {
	t.Helper()
	d := NewDetector(store, DefaultOptions(), zerolog.Nop())
	if workers > 0 {
		d.Start(workers)
		t.Cleanup(d.Stop)
	}
	return d
}

func TestSubmitSinusoidIsNormal(t *testing.T) {
	d := newTestDetector(t, &staticStore{tmpl: sineTemplate(t), ready: true}, 1)

	// амплитуда отличается от эталона, спектральная форма нет
	sample := testutil.SampleFromAxes(
		testutil.DeterministicSine(8, 3.0, 128),
		testutil.DeterministicSine(8, 0.1, 128),
		testutil.DeterministicSine(8, 7.5, 128),
	)

	v, err := d.Submit(context.Background(), testutil.Payload(sample))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeNormal, v.Outcome)
	assert.InDelta(t, 1.0, v.Similarity.X, 1e-9)
	assert.InDelta(t, 1.0, v.Similarity.Y, 1e-9)
	assert.InDelta(t, 1.0, v.Similarity.Z, 1e-9)
	assert.InDelta(t, 1.0, v.FaultIndex, 1e-9)
	assert.Equal(t, DefaultAnomalyThreshold, v.Threshold)
	assert.Equal(t, 128, v.Measurements)
	assert.NotEmpty(t, v.ID)
	assert.False(t, v.ReceivedAt.IsZero())
}

func TestSubmitNoiseIsAnomaly(t *testing.T) {
	d := newTestDetector(t, &staticStore{tmpl: sineTemplate(t), ready: true}, 1)

	v, err := d.Submit(context.Background(), testutil.Payload(testutil.NoiseSample(5, 128)))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeAnomaly, v.Outcome)
	assert.Less(t, v.FaultIndex, DefaultAnomalyThreshold)
}

func TestSubmitTruncatesLongBurst(t *testing.T) {
	d := newTestDetector(t, &staticStore{tmpl: sineTemplate(t), ready: true}, 0)

	long := append(testutil.SineSample(8, 128), testutil.NoiseSample(1, 72)...)
	v, err := d.Submit(context.Background(), testutil.Payload(long))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeNormal, v.Outcome)
	assert.Equal(t, 128, v.Measurements)
}

func TestSubmitShortBurstShapeMismatch(t *testing.T) {
	d := newTestDetector(t, &staticStore{tmpl: sineTemplate(t), ready: true}, 1)

	v, err := d.Submit(context.Background(), testutil.Payload(testutil.SineSample(8, 100)))
	require.Error(t, err)
	assert.Nil(t, v)
	assert.True(t, errors.Is(err, errors.ErrShapeMismatch))
}

func TestSubmitMalformedPayload(t *testing.T) {
	d := newTestDetector(t, &staticStore{tmpl: sineTemplate(t), ready: true}, 1)

	for _, payload := range []string{
		`{"x":[1,2],"y":[1],"z":[1,2]}`,
		`{"x":["a"],"y":[1],"z":[1]}`,
		`not json`,
	} {
		v, err := d.Submit(context.Background(), []byte(payload))
		require.Error(t, err, payload)
		assert.Nil(t, v)
		assert.True(t, errors.Is(err, errors.ErrDecode), payload)
	}
}

func TestSubmitFlatAxisDegenerate(t *testing.T) {
	d := newTestDetector(t, &staticStore{tmpl: sineTemplate(t), ready: true}, 1)

	flat := make([]float64, 128)
	sample := testutil.SampleFromAxes(testutil.DeterministicSine(8, 1, 128), flat, testutil.DeterministicSine(8, 1, 128))

	_, err := d.Submit(context.Background(), testutil.Payload(sample))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDegenerateVector))
}

func TestSubmitReferenceUnavailable(t *testing.T) {
	storeErr := errors.New(errors.CodeReferenceUnavailable, "initial load failed")
	d := newTestDetector(t, &staticStore{err: storeErr}, 1)

	_, err := d.Submit(context.Background(), testutil.Payload(testutil.SineSample(8, 128)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrReferenceUnavailable))
	assert.False(t, d.Ready())
}

func TestSubmitAfterStop(t *testing.T) {
	d := NewDetector(&staticStore{tmpl: sineTemplate(t), ready: true}, DefaultOptions(), zerolog.Nop())
	d.Start(1)
	require.True(t, d.Ready())

	d.Stop()
	d.Stop()

	_, err := d.Submit(context.Background(), testutil.Payload(testutil.SineSample(8, 128)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStopped))
	assert.False(t, d.Ready())
}

func TestSubmitQueueFull(t *testing.T) {
	store := &blockingStore{
		tmpl:    sineTemplate(t),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	opts := DefaultOptions()
	opts.QueueSize = 1
	d := NewDetector(store, opts, zerolog.Nop())
	d.Start(1)
	defer d.Stop()

	payload := testutil.Payload(testutil.SineSample(8, 128))
	results := make(chan error, 2)

	go func() {
		_, err := d.Submit(context.Background(), payload)
		results <- err
	}()
	<-store.entered

	go func() {
		_, err := d.Submit(context.Background(), payload)
		results <- err
	}()
	require.Eventually(t, func() bool { return len(d.jobs) == 1 }, time.Second, time.Millisecond)

	_, err := d.Submit(context.Background(), payload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrQueueFull))

	close(store.release)
	for i := 0; i < 2; i++ {
		assert.NoError(t, <-results)
	}
}

func TestSubmitContextCancelled(t *testing.T) {
	store := &blockingStore{
		tmpl:    sineTemplate(t),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	d := newTestDetector(t, store, 1)
	defer close(store.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Submit(ctx, testutil.Payload(testutil.SineSample(8, 128)))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitConcurrent(t *testing.T) {
	d := newTestDetector(t, &staticStore{tmpl: sineTemplate(t), ready: true}, 4)
	payload := testutil.Payload(testutil.SineSample(8, 128))

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := d.Submit(context.Background(), payload)
			if assert.NoError(t, err) {
				assert.Equal(t, models.OutcomeNormal, v.Outcome)
			}
		}()
	}
	wg.Wait()

	stats := d.GetStats()
	assert.Equal(t, int64(12), stats["processed"])
	assert.Equal(t, 4, stats["workers"])
}

func TestDetectNilTemplate(t *testing.T) {
	_, err := Detect(testutil.Payload(testutil.SineSample(8, 128)), nil, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrReferenceUnavailable))
}
