package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-fanout-bot/internal/adapters/bot"
	"tg-fanout-bot/internal/adapters/mtproto"
	"tg-fanout-bot/internal/adapters/repo"
	"tg-fanout-bot/internal/adapters/telegram"
	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/infra/cache"
	"tg-fanout-bot/internal/infra/config"
	"tg-fanout-bot/internal/infra/db"
	"tg-fanout-bot/internal/infra/http"
	"tg-fanout-bot/internal/infra/log"
	"tg-fanout-bot/internal/infra/metrics"
	"tg-fanout-bot/internal/infra/queue"
	"tg-fanout-bot/internal/usecase/digest"
	"tg-fanout-bot/internal/usecase/router"
	"tg-fanout-bot/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("не удалось применить схему БД")
	}
	store := repo.NewPostgres(pool)

	var dedup domain.Cache
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		dedup = cache.NewRedis(redisClient)
	}

	var posts domain.PostQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitPostQueue(cfg.RabbitURL, cfg.Queues.Posts)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		posts = rabbit
	} else if redisClient != nil {
		posts = queue.NewRedisPostQueue(redisClient, cfg.Queues.Posts)
	} else {
		logger.Fatal().Msg("нужна очередь событий: задайте RABBITMQ_URL или REDIS_ADDR")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	sender := telegram.NewSender(botAPI, logger, cfg.SendDelay)

	mtClient := mtproto.NewClient(cfg.Telegram.APIID, cfg.Telegram.APIHash, cfg.MTProto.SessionFile, nil, logger)
	go func() {
		if err := mtClient.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("mtproto: клиент остановлен")
		}
	}()
	resolver := mtproto.NewResolver(mtClient, logger)

	routing := router.NewService(store, store, store, store, resolver, sender, logger)
	if err := routing.Start(); err != nil {
		logger.Fatal().Err(err).Msg("не удалось восстановить наблюдение")
	}
	go func() {
		if err := routing.Run(ctx, posts); err != nil {
			logger.Error().Err(err).Msg("потребитель очереди остановлен")
		}
	}()

	digests := digest.NewService(store, sender, logger,
		cfg.Digest.Lookback, cfg.Digest.PostsPerGroup, cfg.Digest.RenderTruncate)
	prefs := schedule.NewPrefs(store)

	scheduler := schedule.NewScheduler(store, digests, store, dedup, logger,
		cfg.Digest.TickPeriod, cfg.Digest.Retention)
	scheduler.Start()
	defer scheduler.Stop()

	handler := bot.NewHandler(botAPI, logger, routing, digests, prefs, store)

	srv := http.NewServer(logger)
	srv.Router.Post("/bot/webhook", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			stdhttp.Error(w, err.Error(), stdhttp.StatusBadRequest)
			return
		}
		handler.HandleUpdate(r.Context(), update)
		w.WriteHeader(stdhttp.StatusOK)
	})

	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("некорректный URL вебхука")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("не удалось установить вебхук")
		}
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := srv.Start(addr); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
