package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	WatchedChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "watched_channels",
		Help: "Количество активно наблюдаемых каналов",
	})
	PostsIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_ingested_total",
		Help: "Входящие события постов по исходу обработки",
	}, []string{"outcome"})
	RealtimeForwardsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_forwards_total",
		Help: "Пересланные в realtime-режиме посты",
	})
	SendErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "send_errors_total",
		Help: "Ошибки отправки сообщений получателям",
	})
	DigestsDeliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "digests_delivered_total",
		Help: "Доставленные дайджесты",
	})
	DigestBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "digest_build_seconds",
		Help:    "Время сборки и доставки дайджеста",
		Buckets: prometheus.DefBuckets,
	})
	PurgedPostsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "purged_posts_total",
		Help: "Посты, удалённые по истечении срока хранения",
	})
	RateLimitWaitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_waits_total",
		Help: "Паузы по сигналу троттлинга транспорта",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		WatchedChannels,
		PostsIngestedTotal,
		RealtimeForwardsTotal,
		SendErrorsTotal,
		DigestsDeliveredTotal,
		DigestBuildSeconds,
		PurgedPostsTotal,
		RateLimitWaitsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncIngest увеличивает счётчик входящих событий по исходу.
func IncIngest(outcome string) {
	PostsIngestedTotal.WithLabelValues(outcome).Inc()
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}
