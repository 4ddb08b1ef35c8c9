package reference

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"vibration-monitor/internal/errors"
	"vibration-monitor/internal/metrics"
	"vibration-monitor/internal/models"
)

// DefaultLoadTimeout предел на чтение и разбор эталона
const DefaultLoadTimeout = 30 * time.Second

// Store загружает эталон один раз и отдает его всем вызовам только для чтения.
// Неудачная первая загрузка запоминается: повторного чтения источника нет.
type Store struct {
	source       Source
	keys         Keys
	expectedRows int
	loadTimeout  time.Duration
	log          zerolog.Logger

	once   sync.Once
	tmpl   *models.ReferenceTemplate
	err    error
	ready  atomic.Bool
	loaded time.Time
}

// NewStore создает хранилище. expectedRows - floor(max_measurements/2).
func NewStore(source Source, keys Keys, expectedRows int, log zerolog.Logger) *Store {
	return &Store{
		source:       source,
		keys:         keys.withDefaults(),
		expectedRows: expectedRows,
		loadTimeout:  DefaultLoadTimeout,
		log:          log.With().Str("component", "reference").Str("source", source.String()).Logger(),
	}
}

// WithLoadTimeout задает предел на загрузку. Вызывать до первого Load.
func (s *Store) WithLoadTimeout(d time.Duration) *Store {
	if d > 0 {
		s.loadTimeout = d
	}
	return s
}

// Load возвращает эталон, читая источник только при первом вызове.
// Конкурентные первые вызовы ждут одну загрузку. Отмена ctx вызывающего
// на загрузку не влияет: ее результат общий для всех. Загрузку ограничивает
// только loadTimeout.
func (s *Store) Load(ctx context.Context) (*models.ReferenceTemplate, error) {
	s.once.Do(func() {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		s.tmpl, s.err = s.load(loadCtx)
		if s.err != nil {
			metrics.ReferenceLoaded.Set(0)
			s.log.Error().Err(s.err).Msg("reference templates unavailable")
			return
		}
		s.loaded = time.Now()
		s.ready.Store(true)
		metrics.ReferenceLoaded.Set(1)
		s.log.Info().
			Int("rows", s.tmpl.Normal.Rows()).
			Int("cols", s.tmpl.Normal.Cols()).
			Msg("reference templates loaded")
	})
	return s.tmpl, s.err
}

func (s *Store) load(ctx context.Context) (*models.ReferenceTemplate, error) {
	data, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeReferenceUnavailable, err, "read %s", s.source)
	}

	tmpl, err := Decode(data, s.keys)
	if err != nil {
		return nil, errors.Wrap(errors.CodeReferenceUnavailable, err, "decode %s", s.source)
	}

	if err := s.validate(tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (s *Store) validate(tmpl *models.ReferenceTemplate) error {
	for name, m := range map[string]models.FeatureMatrix{
		s.keys.Normal:   tmpl.Normal,
		s.keys.Abnormal: tmpl.Abnormal,
	} {
		if m.Rows() != s.expectedRows || m.Cols() != models.AxisCount {
			return errors.New(errors.CodeReferenceUnavailable,
				"%s is %dx%d, expected %dx%d", name, m.Rows(), m.Cols(), s.expectedRows, models.AxisCount)
		}
	}
	return nil
}

// Ready true после успешной загрузки
func (s *Store) Ready() bool {
	return s.ready.Load()
}

// Source адрес источника
func (s *Store) Source() string {
	return s.source.String()
}

// GetStats возвращает состояние хранилища
func (s *Store) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"source": s.source.String(),
		"ready":  s.ready.Load(),
		"rows":   s.expectedRows,
	}
	if s.ready.Load() {
		stats["loaded_at"] = s.loaded
	}
	return stats
}

// Close освобождает ресурсы источника
func (s *Store) Close() error {
	if c, ok := s.source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
