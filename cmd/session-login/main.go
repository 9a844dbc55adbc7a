package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog/log"

	"tg-fanout-bot/internal/infra/config"
)

// Авторизует юзербот-сессию и сохраняет её в файл, который затем
// используют коллектор и резолвер каналов.
func main() {
	var phone string
	flag.StringVar(&phone, "phone", "", "Номер телефона в международном формате")
	flag.Parse()

	if phone == "" {
		log.Fatal().Msg("session-login: укажите номер телефона (-phone)")
	}

	cfg := config.Load()
	if cfg.MTProto.SessionFile == "" {
		log.Fatal().Msg("session-login: переменная MTPROTO_SESSION_FILE обязательна")
	}

	client := telegram.NewClient(cfg.Telegram.APIID, cfg.Telegram.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.MTProto.SessionFile},
	})

	flow := auth.NewFlow(termAuth{phone: phone}, auth.SendCodeOptions{})

	ctx := context.Background()
	err := client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("авторизация: %w", err)
		}
		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("профиль: %w", err)
		}
		fmt.Printf("Сессия сохранена в %s (аккаунт: %s)\n", cfg.MTProto.SessionFile, self.Username)
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("session-login: не удалось авторизоваться")
	}
}

// termAuth запрашивает код подтверждения и пароль 2FA из терминала.
type termAuth struct {
	phone string
}

var _ auth.UserAuthenticator = termAuth{}

func (a termAuth) Phone(_ context.Context) (string, error) { return a.phone, nil }

func (a termAuth) Password(_ context.Context) (string, error) {
	return prompt("Пароль 2FA: ")
}

func (a termAuth) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return prompt("Код из Telegram: ")
}

func (a termAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (a termAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, fmt.Errorf("регистрация новых аккаунтов не поддерживается")
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
