package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"vibration-monitor/internal/analytics"
	"vibration-monitor/internal/config"
	"vibration-monitor/internal/handlers"
	"vibration-monitor/internal/logger"
	"vibration-monitor/internal/metrics"
	"vibration-monitor/internal/mqttingest"
	"vibration-monitor/internal/reference"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vibration-monitor: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vibration-monitor: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg, log); err != nil {
		logger.WithCode(log.Fatal(), err).Msg("service stopped")
	}
	log.Info().Msg("service stopped gracefully")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().Msg("starting vibration monitoring service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Эталон
	src, err := reference.OpenSource(ctx, cfg.Reference.Location, reference.S3Options{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Region:    cfg.S3.Region,
		Secure:    cfg.S3.Secure,
	})
	if err != nil {
		return fmt.Errorf("failed to open reference: %w", err)
	}

	store := reference.NewStore(src, reference.Keys{
		Normal:   cfg.Reference.NormalKey,
		Abnormal: cfg.Reference.AbnormalKey,
	}, cfg.ExpectedRows(), log).WithLoadTimeout(cfg.Reference.LoadTimeout)
	defer store.Close()

	if cfg.Reference.Eager {
		if _, err := store.Load(ctx); err != nil {
			return err
		}
	}

	// Детектор
	detector := analytics.NewDetector(store, analytics.Options{
		MaxMeasurements: cfg.MaxMeasurements,
		Threshold:       cfg.AnomalyThreshold,
		MaxReadings:     cfg.MaxReadings,
		QueueSize:       cfg.QueueSize,
	}, log)
	detector.Start(cfg.Workers)
	defer detector.Stop()
	log.Info().
		Int("workers", cfg.Workers).
		Int("max_measurements", cfg.MaxMeasurements).
		Float64("threshold", cfg.AnomalyThreshold).
		Msg("detector started")

	// Redis доступен только когда эталон лежит в нем
	var redisClient handlers.RedisClient
	if rs, ok := src.(*reference.RedisSource); ok {
		redisClient = rs.Cache()
	}

	handler := handlers.NewHandler(detector, store, redisClient, handlers.Options{
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		SubmitTimeout:   cfg.SubmitTimeout,
		RateLimit:       cfg.RateLimit,
		RateBurst:       cfg.RateBurst,
	}, log)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/prometheus", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.SubmitTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if cfg.MQTT.Broker != "" {
		sub := mqttingest.NewSubscriber(mqttingest.Config{
			Broker:        cfg.MQTT.Broker,
			ClientID:      cfg.MQTT.ClientID,
			Topic:         cfg.MQTT.Topic,
			VerdictTopic:  cfg.MQTT.VerdictTopic,
			QoS:           byte(cfg.MQTT.QoS),
			SubmitTimeout: cfg.SubmitTimeout,
		}, detector, log)
		g.Go(func() error {
			return sub.Run(gctx)
		})
	}

	// Периодическое обновление метрик
	g.Go(func() error {
		updateMetrics(gctx, detector, store)
		return nil
	})

	return g.Wait()
}

// updateMetrics периодически обновляет метрики
func updateMetrics(ctx context.Context, detector *analytics.Detector, store *reference.Store) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats := detector.GetStats()
		if queueSize, ok := stats["queue_size"].(int); ok {
			metrics.QueueSize.Set(float64(queueSize))
		}
		if store.Ready() {
			metrics.ReferenceLoaded.Set(1)
		} else {
			metrics.ReferenceLoaded.Set(0)
		}
	}
}
