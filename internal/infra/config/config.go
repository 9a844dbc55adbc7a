package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		APIID      int    `envconfig:"TG_API_ID"`
		APIHash    string `envconfig:"TG_API_HASH"`
	} `envconfig:""`

	MTProto struct {
		SessionFile string `envconfig:"MTPROTO_SESSION_FILE"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Posts string `envconfig:"POST_QUEUE_KEY" default:"post_events"`
	} `envconfig:""`

	Digest struct {
		Lookback       time.Duration `envconfig:"DIGEST_LOOKBACK" default:"24h"`
		Retention      time.Duration `envconfig:"POST_RETENTION" default:"168h"`
		TickPeriod     time.Duration `envconfig:"SCHEDULER_TICK" default:"1m"`
		PostsPerGroup  int           `envconfig:"DIGEST_POSTS_PER_CHANNEL" default:"5"`
		RenderTruncate int           `envconfig:"DIGEST_TEXT_TRUNCATE" default:"100"`
	} `envconfig:""`

	SendDelay time.Duration `envconfig:"REALTIME_SEND_DELAY" default:"100ms"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
