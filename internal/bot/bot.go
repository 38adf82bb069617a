package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"worktime/internal/config"
	"worktime/internal/model"
	"worktime/internal/notify"
	"worktime/internal/service"
)

const (
	menuLabelBegin  = "▶️ Начать смену"
	menuLabelEnd    = "⏹ Завершить смену"
	menuLabelStatus = "🟢 Статус"
	menuLabelStats  = "📊 Статистика"
	menuLabelTop    = "🏆 Рейтинг"
	menuLabelHelp   = "ℹ️ Помощь"
)

// Services are the core operations the bot front end calls into.
type Services struct {
	Sessions *service.SessionService
	Rollups  *service.RollupService
	Stats    *service.StatsService
	Jobs     *service.JobService
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	svc    Services
	config *config.Config
	loc    *time.Location
	log    *slog.Logger
}

// Connect authorizes against the Telegram API. The client is shared by the
// bot and the TelegramSink.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

func New(api *tgbotapi.BotAPI, svc Services, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	b, err := newBot(api, svc, cfg, log)
	if err != nil {
		return nil, err
	}
	b.api = api
	b.log.Info("bot authorized", "account", api.Self.UserName)
	return b, nil
}

func newBot(sender Sender, svc Services, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bot{sender: sender, svc: svc, config: cfg, loc: loc, log: log.With("component", "bot")}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot has no telegram client")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error("handle message", "user_id", update.Message.Chat.ID, "error", err)
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
		return b.sendText(msg.Chat.ID, "Я понимаю только команды. Набери /help, чтобы увидеть список.")
	}

	b.log.Debug("command", "user_id", msg.From.ID, "command", msg.Command(), "args", msg.CommandArguments())
	return b.handleCommand(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(msg)
	case "help":
		return b.handleHelp(msg)
	case "begin":
		return b.handleBegin(ctx, msg)
	case "end":
		return b.handleEnd(ctx, msg)
	case "status":
		return b.handleStatus(ctx, msg)
	case "history":
		return b.handleHistory(ctx, msg)
	case "goal":
		return b.handleGoal(ctx, msg)
	case "top":
		return b.handleTop(ctx, msg)
	case "stats":
		return b.handleStats(ctx, msg)
	case "closeall", "resetweek", "backup", "system", "report", "endfor":
		if !b.config.IsAdmin(msg.From.ID) {
			return b.sendText(msg.Chat.ID, "⛔ Команда доступна только администраторам.")
		}
		return b.handleAdminCommand(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}
	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я учитываю рабочие смены.</b>\n\n"+
			"Начни смену командой /begin и заверши её командой /end. "+
			"Смены длиннее %d ч закрываются автоматически.\n\nВсе команды: /help",
		escape(name), b.config.MaxSessionHours,
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Команды</b>\n" +
		"• /begin — начать смену\n" +
		"• /end — завершить смену\n" +
		"• /status — текущая смена\n" +
		"• /history [N] — последние смены\n" +
		"• /goal daily|weekly &lt;часы&gt; — задать цель (например, /goal daily 7.5)\n" +
		"• /top [daily|weekly|monthly|overall] — рейтинг\n" +
		"• /stats — моя статистика"
	if b.config.IsAdmin(msg.From.ID) {
		text += "\n\n🛠 <b>Администратор</b>\n" +
			"• /system — состояние системы\n" +
			"• /report — отчёт за день\n" +
			"• /endfor &lt;id&gt; — завершить смену пользователя\n" +
			"• /closeall — завершить все смены\n" +
			"• /resetweek — сбросить недельную статистику\n" +
			"• /backup — резервная копия базы"
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleBegin(ctx context.Context, msg *tgbotapi.Message) error {
	started, err := b.svc.Sessions.StartSession(ctx, msg.From.ID, displayName(msg.From))
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if !started {
		return b.sendText(msg.Chat.ID, "⚠️ Смена уже идёт. Завершить: /end")
	}
	active, err := b.svc.Sessions.ActiveSession(ctx, msg.From.ID)
	if err != nil || active == nil {
		return b.sendText(msg.Chat.ID, "▶️ Смена начата. Удачной работы!")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("▶️ Смена начата в %s. Удачной работы!", active.StartTime.In(b.loc).Format("15:04")))
}

func (b *Bot) handleEnd(ctx context.Context, msg *tgbotapi.Message) error {
	ended, err := b.svc.Sessions.EndSession(ctx, msg.From.ID, false)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if ended == nil {
		return b.sendText(msg.Chat.ID, "💤 Активной смены нет. Начать: /begin")
	}
	return b.sendText(msg.Chat.ID, renderSessionEnded(sessionEvent(*ended), b.loc))
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) error {
	st, err := b.svc.Stats.UserStats(ctx, msg.From.ID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, renderStatus(st, b.loc))
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message) error {
	limit, err := parseLimit(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Количество должно быть числом от 1 до 50: /history 5")
	}
	sessions, err := b.svc.Sessions.History(ctx, msg.From.ID, limit)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, renderHistory(sessions, b.loc))
}

func (b *Bot) handleGoal(ctx context.Context, msg *tgbotapi.Message) error {
	kind, hours, err := parseGoalArgs(msg.CommandArguments())
	if err == nil {
		err = b.svc.Sessions.SetGoal(ctx, msg.From.ID, displayName(msg.From), kind, hours)
	}
	if errors.Is(err, model.ErrInvalidArgument) {
		return b.sendText(msg.Chat.ID, "Формат: /goal daily|weekly &lt;часы&gt;, от 0 до 24 часов. Например: /goal weekly 20")
	}
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	label := "Дневная"
	if kind == model.GoalWeekly {
		label = "Недельная"
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🎯 %s цель: %s", label, formatMinutes(int(hours*60))))
}

func (b *Bot) handleTop(ctx context.Context, msg *tgbotapi.Message) error {
	period, err := model.ParsePeriod(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Период: daily, weekly, monthly или overall.")
	}
	top, err := b.svc.Rollups.TopPerformers(ctx, period, 10)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, renderTop(period, top))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	st, err := b.svc.Stats.UserStats(ctx, msg.From.ID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, renderUserStats(st))
}

func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message) error {
	b.log.Info("admin command", "user_id", msg.From.ID, "command", msg.Command())
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "closeall":
		closed, err := b.svc.Sessions.CloseAll(ctx)
		if err != nil && len(closed) == 0 {
			return b.replyError(chatID, err)
		}
		text := fmt.Sprintf("⏹ Завершено смен: %d.", len(closed))
		if err != nil {
			text += " Часть смен закрыть не удалось, подробности в логах."
		}
		return b.sendText(chatID, text)
	case "resetweek":
		n, err := b.svc.Jobs.WeeklyReset(ctx)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.sendText(chatID, fmt.Sprintf("📊 Недельная статистика сброшена для %d пользователей.", n))
	case "backup":
		backup, err := b.svc.Jobs.Backup(ctx)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.sendText(chatID, renderBackup(notify.BackupCompleted{Path: backup.Path, SizeBytes: backup.SizeBytes}))
	case "system":
		st, err := b.svc.Stats.System(ctx)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.sendText(chatID, renderSystem(st, b.loc))
	case "report":
		report, err := b.svc.Stats.DailyReport(ctx)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.sendText(chatID, renderDailyReport(*report))
	case "endfor":
		userID, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
		if err != nil {
			return b.sendText(chatID, "Укажи ID пользователя: /endfor 123456")
		}
		ended, err := b.svc.Sessions.EndSessionByAdmin(ctx, userID)
		if err != nil {
			return b.replyError(chatID, err)
		}
		if ended == nil {
			return b.sendText(chatID, "У пользователя нет активной смены.")
		}
		return b.sendText(chatID, fmt.Sprintf("⏹ Смена пользователя %d завершена: %s.", userID, formatMinutes(ended.Minutes())))
	}
	return nil
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelBegin):
		return true, b.handleBegin(ctx, msg)
	case strings.ToLower(menuLabelEnd):
		return true, b.handleEnd(ctx, msg)
	case strings.ToLower(menuLabelStatus):
		return true, b.handleStatus(ctx, msg)
	case strings.ToLower(menuLabelStats):
		return true, b.handleStats(ctx, msg)
	case strings.ToLower(menuLabelTop):
		return true, b.handleTop(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

// replyError tells the user something went wrong. Details stay in the
// logs and the admin chat.
func (b *Bot) replyError(chatID int64, err error) error {
	b.log.Error("request failed", "chat_id", chatID, "error", err)
	return b.sendText(chatID, "😔 Не получилось выполнить команду. Попробуй позже.")
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.sender.Send(msg)
	return err
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelBegin),
			tgbotapi.NewKeyboardButton(menuLabelEnd),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelStatus),
			tgbotapi.NewKeyboardButton(menuLabelStats),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTop),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.UserName); name != "" {
		return name
	}
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// parseGoalArgs reads "daily 7.5" or "weekly 40". A comma works as the
// decimal separator too.
func parseGoalArgs(args string) (model.GoalKind, float64, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", 0, fmt.Errorf("%w: expected kind and hours", model.ErrInvalidArgument)
	}
	kind, err := model.ParseGoalKind(fields[0])
	if err != nil {
		return "", 0, err
	}
	hours, err := strconv.ParseFloat(strings.ReplaceAll(fields[1], ",", "."), 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad hours %q", model.ErrInvalidArgument, fields[1])
	}
	return kind, hours, nil
}

func parseLimit(args string) (int, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(args)
	if err != nil || n < 1 || n > 50 {
		return 0, fmt.Errorf("%w: bad limit %q", model.ErrInvalidArgument, args)
	}
	return n, nil
}

func sessionEvent(s model.Session) notify.SessionEnded {
	ev := notify.SessionEnded{
		UserID:    s.UserID,
		SessionID: s.ID,
		Start:     s.StartTime,
		Minutes:   s.Minutes(),
		AutoEnded: s.AutoEnded,
	}
	if s.EndTime != nil {
		ev.End = *s.EndTime
	}
	return ev
}
