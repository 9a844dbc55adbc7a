package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-fanout-bot/internal/domain"
)

type stubPostRepo struct {
	posts   []domain.UserPost
	fetchEr error
	marked  [][]int64
	markEr  error
}

func (s *stubPostRepo) RecordPost(channelID, tgMsgID int64, text string) (bool, error) {
	return false, errors.New("не используется")
}

func (s *stubPostRepo) UnsentPostsForUser(userID int64, lookback time.Duration) ([]domain.UserPost, error) {
	if s.fetchEr != nil {
		return nil, s.fetchEr
	}
	return s.posts, nil
}

func (s *stubPostRepo) MarkPostsSent(ids []int64) error {
	if s.markEr != nil {
		return s.markEr
	}
	s.marked = append(s.marked, ids)
	s.posts = nil
	return nil
}

func (s *stubPostRepo) PurgeOlderThan(retention time.Duration) (int64, error) { return 0, nil }

type stubNotifier struct {
	sent   []string
	sendEr error
}

func (s *stubNotifier) Notify(ctx context.Context, userID int64, text string) error {
	if s.sendEr != nil {
		return s.sendEr
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *stubNotifier) Forward(ctx context.Context, userID int64, ref domain.MessageRef) error {
	return errors.New("не используется")
}

func userPost(id, channelID int64, title, text string) domain.UserPost {
	return domain.UserPost{
		Post:         domain.Post{ID: id, ChannelID: channelID, Text: text},
		ChannelTitle: title,
	}
}

func newService(posts *stubPostRepo, notifier *stubNotifier) *Service {
	return NewService(posts, notifier, zerolog.Nop(), 24*time.Hour, 5, 100)
}

func TestDeliverDigest(t *testing.T) {
	posts := &stubPostRepo{posts: []domain.UserPost{
		userPost(1, 10, "Новости", "первый пост"),
		userPost(2, 10, "Новости", "второй пост"),
		userPost(3, 20, "Спорт", "матч закончился"),
	}}
	notifier := &stubNotifier{}
	svc := newService(posts, notifier)

	if err := svc.DeliverDigest(context.Background(), domain.User{ID: 7, Language: "ru"}); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("ожидалось одно сообщение, получено %d", len(notifier.sent))
	}
	msg := notifier.sent[0]
	if !strings.Contains(msg, "Новости") || !strings.Contains(msg, "Спорт") {
		t.Errorf("в дайджесте нет заголовков каналов: %q", msg)
	}
	if len(posts.marked) != 1 || len(posts.marked[0]) != 3 {
		t.Errorf("ожидалась пометка трёх постов, получено %v", posts.marked)
	}
}

func TestDeliverDigestEmptyIsSilent(t *testing.T) {
	posts := &stubPostRepo{}
	notifier := &stubNotifier{}
	svc := newService(posts, notifier)

	if err := svc.DeliverDigest(context.Background(), domain.User{ID: 7}); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("плановый путь отправил сообщение при пустом наборе: %v", notifier.sent)
	}
}

func TestManualDigestEmptyNotifies(t *testing.T) {
	posts := &stubPostRepo{}
	notifier := &stubNotifier{}
	svc := newService(posts, notifier)

	delivered, err := svc.ManualDigest(context.Background(), domain.User{ID: 7, Language: "ru"})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if delivered {
		t.Error("ожидалось delivered=false при пустом наборе")
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("ожидалось явное уведомление об отсутствии постов, получено %d", len(notifier.sent))
	}
	if len(posts.marked) != 0 {
		t.Errorf("при пустом наборе ничего не должно помечаться: %v", posts.marked)
	}
}

func TestManualDigestDelivers(t *testing.T) {
	posts := &stubPostRepo{posts: []domain.UserPost{userPost(1, 10, "Новости", "пост")}}
	notifier := &stubNotifier{}
	svc := newService(posts, notifier)

	delivered, err := svc.ManualDigest(context.Background(), domain.User{ID: 7, Language: "ru"})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !delivered {
		t.Error("ожидалось delivered=true")
	}
}

func TestDigestGroupingAndExhaustion(t *testing.T) {
	posts := &stubPostRepo{}
	for i := int64(1); i <= 6; i++ {
		posts.posts = append(posts.posts, userPost(i, 10, "Новости", "пост"))
	}
	posts.posts = append(posts.posts,
		userPost(7, 20, "Спорт", "матч"),
		userPost(8, 20, "Спорт", "гол"),
	)
	notifier := &stubNotifier{}
	svc := newService(posts, notifier)

	if err := svc.DeliverDigest(context.Background(), domain.User{ID: 7, Language: "ru"}); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("дайджест должен уйти одним сообщением, получено %d", len(notifier.sent))
	}
	msg := notifier.sent[0]
	if got := strings.Count(msg, "•"); got != 7 {
		t.Errorf("ожидалось 5 постов первой группы и 2 второй, строк: %d", got)
	}
	if !strings.Contains(msg, "ещё 1") {
		t.Errorf("у первой группы должен быть маркер скрытого поста: %q", msg)
	}
	if len(posts.marked) != 1 || len(posts.marked[0]) != 8 {
		t.Fatalf("все 8 постов должны быть помечены: %v", posts.marked)
	}

	// Повторный ручной запрос сразу после доставки: постов больше нет.
	delivered, err := svc.ManualDigest(context.Background(), domain.User{ID: 7, Language: "ru"})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if delivered {
		t.Error("после доставки ручной дайджест должен вернуть false")
	}
	if len(notifier.sent) != 2 {
		t.Errorf("ожидалось явное уведомление об отсутствии постов: %v", notifier.sent)
	}
}

func TestDigestSendFailureKeepsPostsUnsent(t *testing.T) {
	posts := &stubPostRepo{posts: []domain.UserPost{userPost(1, 10, "Новости", "пост")}}
	notifier := &stubNotifier{sendEr: errors.New("сеть недоступна")}
	svc := newService(posts, notifier)

	if err := svc.DeliverDigest(context.Background(), domain.User{ID: 7}); err == nil {
		t.Fatal("ожидалась ошибка доставки")
	}
	if len(posts.marked) != 0 {
		t.Errorf("посты помечены несмотря на провал доставки: %v", posts.marked)
	}
}
