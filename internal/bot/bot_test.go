package bot

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worktime/internal/clock"
	"worktime/internal/config"
	"worktime/internal/logging"
	"worktime/internal/model"
	"worktime/internal/notify"
	"worktime/internal/repository"
	"worktime/internal/service"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, sentMessage{chatID: m.ChatID, text: m.Text})
	}
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) last(t *testing.T) sentMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent)
	return s.sent[len(s.sent)-1]
}

const adminID = 900

func newTestBot(t *testing.T) (*Bot, *fakeSender, *clock.Fake) {
	t.Helper()
	log := logging.Discard()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "bot.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close(db) })

	cfg := config.Default()
	cfg.Timezone = "UTC"
	cfg.AdminUserIDs = []int64{adminID}
	cfg.BackupDirectory = filepath.Join(t.TempDir(), "backups")

	clk := clock.NewFake(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	repos := repository.NewRepositories(db)
	rollups := service.NewRollupService(repos, clk, time.UTC, log)
	sessions := service.NewSessionService(repos, rollups, clk, notify.Discard, cfg.GoalDefaults(), log)
	watchdog := service.NewWatchdogService(repos.Sessions, sessions, clk, cfg.MaxSession(), log)
	reminders := service.NewReminderService(repos.Users, repos.Sessions, cfg.ReminderThreshold, time.UTC)
	backups := repository.NewSQLiteBackup(db, cfg.BackupDirectory, clk)
	stats := service.NewStatsService(repos, rollups, clk, cfg.MaxSession())
	svc := Services{
		Sessions: sessions,
		Rollups:  rollups,
		Stats:    stats,
		Jobs:     service.NewJobService(rollups, reminders, watchdog, stats, backups.Snapshot, notify.Discard, clk, log),
	}

	sender := &fakeSender{}
	b, err := newBot(sender, svc, &cfg, log)
	require.NoError(t, err)
	return b, sender, clk
}

func command(userID int64, text string) *tgbotapi.Message {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: userID, UserName: "user"},
		Chat:     &tgbotapi.Chat{ID: userID, Type: "private"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func TestBeginEndFlow(t *testing.T) {
	b, sender, clk := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command(1, "/begin")))
	assert.Contains(t, sender.last(t).text, "Смена начата")

	require.NoError(t, b.handleMessage(ctx, command(1, "/begin")))
	assert.Contains(t, sender.last(t).text, "уже идёт")

	clk.Advance(2*time.Hour + 5*time.Minute)
	require.NoError(t, b.handleMessage(ctx, command(1, "/status")))
	assert.Contains(t, sender.last(t).text, "2 ч 05 мин")

	require.NoError(t, b.handleMessage(ctx, command(1, "/end")))
	last := sender.last(t)
	assert.Equal(t, int64(1), last.chatID)
	assert.Contains(t, last.text, "Смена завершена")
	assert.Contains(t, last.text, "2 ч 05 мин")

	require.NoError(t, b.handleMessage(ctx, command(1, "/end")))
	assert.Contains(t, sender.last(t).text, "Активной смены нет")

	require.NoError(t, b.handleMessage(ctx, command(1, "/history")))
	assert.Contains(t, sender.last(t).text, "02.06.2025 09:00")
}

func TestGoalCommand(t *testing.T) {
	b, sender, _ := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command(1, "/goal daily 7,5")))
	assert.Contains(t, sender.last(t).text, "7 ч 30 мин")

	require.NoError(t, b.handleMessage(ctx, command(1, "/goal weekly 30")))
	assert.Contains(t, sender.last(t).text, "Формат")

	require.NoError(t, b.handleMessage(ctx, command(1, "/stats")))
	assert.Contains(t, sender.last(t).text, "7 ч 30 мин в день")
}

func TestAdminCommandsAreGated(t *testing.T) {
	b, sender, _ := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command(1, "/system")))
	assert.Contains(t, sender.last(t).text, "только администраторам")

	require.NoError(t, b.handleMessage(ctx, command(1, "/begin")))
	require.NoError(t, b.handleMessage(ctx, command(adminID, "/endfor 1")))
	assert.Contains(t, sender.last(t).text, "Смена пользователя 1 завершена")

	require.NoError(t, b.handleMessage(ctx, command(adminID, "/system")))
	assert.Contains(t, sender.last(t).text, "Пользователей: 1")

	require.NoError(t, b.handleMessage(ctx, command(adminID, "/backup")))
	assert.Contains(t, sender.last(t).text, "worktime_backup_20250602_090000.db")

	require.NoError(t, b.handleMessage(ctx, command(adminID, "/resetweek")))
	assert.Contains(t, sender.last(t).text, "для 1 пользователей")
}

func TestTopCommand(t *testing.T) {
	b, sender, clk := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command(1, "/begin")))
	clk.Advance(time.Hour)
	require.NoError(t, b.handleMessage(ctx, command(1, "/end")))

	require.NoError(t, b.handleMessage(ctx, command(1, "/top weekly")))
	assert.Contains(t, sender.last(t).text, "🥇 user — 1 ч (1)")

	require.NoError(t, b.handleMessage(ctx, command(1, "/top yearly")))
	assert.Contains(t, sender.last(t).text, "Период")
}

func TestTelegramSinkRouting(t *testing.T) {
	sender := &fakeSender{}
	sink := NewTelegramSink(sender, adminID, time.UTC)
	ctx := context.Background()
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Notify(ctx, notify.SessionEnded{UserID: 1, Start: start, End: start.Add(time.Hour), Minutes: 60}))
	assert.Empty(t, sender.sent, "manual ends are answered by the command")

	require.NoError(t, sink.Notify(ctx, notify.SessionEnded{UserID: 1, Username: "ann", Start: start, End: start.Add(12 * time.Hour), Minutes: 720, AutoEnded: true}))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(1), sender.sent[0].chatID)
	assert.Contains(t, sender.sent[0].text, "автоматически")
	assert.Equal(t, int64(adminID), sender.sent[1].chatID)
	assert.Contains(t, sender.sent[1].text, "ann")

	require.NoError(t, sink.Notify(ctx, notify.SessionEnded{UserID: 42, Start: start, End: start.Add(95 * time.Minute), Minutes: 95, ClosedByAdmin: true}))
	require.Len(t, sender.sent, 3)
	assert.Equal(t, int64(42), sender.sent[2].chatID, "admin closes are reported to the user")
	assert.Contains(t, sender.sent[2].text, "администратором")
	assert.Contains(t, sender.sent[2].text, "1 ч 35 мин")

	require.NoError(t, sink.Notify(ctx, notify.DailyReport{Day: "2025-06-02", Today: model.Totals{Minutes: 90, Sessions: 1}}))
	assert.Equal(t, int64(adminID), sender.last(t).chatID)
	assert.Contains(t, sender.last(t).text, "Отчёт за 2025-06-02")

	require.NoError(t, sink.Notify(ctx, notify.ReminderDue{UserID: 2, GoalHours: 8, RemainingHours: 8}))
	assert.Equal(t, int64(2), sender.last(t).chatID)

	require.NoError(t, sink.Notify(ctx, notify.Failed("backup", 0, assert.AnError)))
	assert.Equal(t, int64(adminID), sender.last(t).chatID)
	assert.Contains(t, sender.last(t).text, "backup")

	quiet := &fakeSender{}
	require.NoError(t, NewTelegramSink(quiet, 0, time.UTC).Notify(ctx, notify.BackupCompleted{Path: "x"}))
	assert.Empty(t, quiet.sent, "no admin chat configured")
}

func TestParseGoalArgs(t *testing.T) {
	kind, hours, err := parseGoalArgs("Weekly 37.5")
	require.NoError(t, err)
	assert.Equal(t, model.GoalWeekly, kind)
	assert.InDelta(t, 37.5, hours, 1e-9)

	for _, bad := range []string{"", "daily", "monthly 3", "daily x", "daily 1 2"} {
		_, _, err := parseGoalArgs(bad)
		assert.ErrorIs(t, err, model.ErrInvalidArgument, bad)
	}
}

func TestParseLimit(t *testing.T) {
	n, err := parseLimit("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = parseLimit(" 5 ")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = parseLimit("51")
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "0 мин", formatMinutes(-3))
	assert.Equal(t, "45 мин", formatMinutes(45))
	assert.Equal(t, "2 ч", formatMinutes(120))
	assert.Equal(t, "2 ч 05 мин", formatMinutes(125))

	assert.Equal(t, "512 Б", formatBytes(512))
	assert.Equal(t, "1.5 КБ", formatBytes(1536))
	assert.Equal(t, "2.0 МБ", formatBytes(2*1024*1024))

	assert.Equal(t, "ann", displayName(&tgbotapi.User{UserName: "ann", FirstName: "Ann"}))
	assert.Equal(t, "Ann Lee", displayName(&tgbotapi.User{FirstName: "Ann", LastName: "Lee"}))
	assert.Equal(t, "id7", nameOr(" ", 7))
	assert.Equal(t, "abc…", truncate("abcdef", 3))
}
