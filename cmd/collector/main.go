package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-fanout-bot/internal/adapters/mtproto"
	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/infra/config"
	"tg-fanout-bot/internal/infra/log"
	"tg-fanout-bot/internal/infra/metrics"
	"tg-fanout-bot/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var posts domain.PostQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitPostQueue(cfg.RabbitURL, cfg.Queues.Posts)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		posts = rabbit
	} else if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		posts = queue.NewRedisPostQueue(client, cfg.Queues.Posts)
	} else {
		logger.Fatal().Msg("нужна очередь событий: задайте RABBITMQ_URL или REDIS_ADDR")
	}

	metrics.StartServer(ctx, logger, fmt.Sprintf(":%d", cfg.Port))

	watcher := mtproto.NewWatcher(posts, logger)
	client := mtproto.NewClient(cfg.Telegram.APIID, cfg.Telegram.APIHash,
		cfg.MTProto.SessionFile, watcher.Dispatcher(), logger)

	logger.Info().Msg("коллектор запущен")
	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("коллектор остановлен с ошибкой")
	}
	logger.Info().Msg("коллектор остановлен")
}
