package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"worktime/internal/notify"
)

// Sender is the part of *tgbotapi.BotAPI used to post messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink renders events as chat messages. Auto-ended and admin-closed
// sessions and reminders go to the user's private chat; job results,
// daily reports and failures go to the admin chat.
type TelegramSink struct {
	sender      Sender
	adminChatID int64
	loc         *time.Location
}

func NewTelegramSink(sender Sender, adminChatID int64, loc *time.Location) *TelegramSink {
	if loc == nil {
		loc = time.Local
	}
	return &TelegramSink{sender: sender, adminChatID: adminChatID, loc: loc}
}

func (s *TelegramSink) Notify(_ context.Context, e notify.Event) error {
	switch ev := e.(type) {
	case notify.SessionEnded:
		switch {
		case ev.AutoEnded:
			if err := s.send(ev.UserID, renderSessionEnded(ev, s.loc)); err != nil {
				return err
			}
			return s.toAdmin(renderAutoEndedAdmin(ev))
		case ev.ClosedByAdmin:
			// The admin sees the command's own reply.
			return s.send(ev.UserID, renderSessionEnded(ev, s.loc))
		default:
			// Self ends are answered inline by the command handler.
			return nil
		}
	case notify.ReminderDue:
		return s.send(ev.UserID, renderReminder(ev))
	case notify.WeeklyResetCompleted:
		return s.toAdmin(renderWeeklyReset(ev))
	case notify.BackupCompleted:
		return s.toAdmin(renderBackup(ev))
	case notify.DailyReport:
		return s.toAdmin(renderDailyReport(ev))
	case notify.OperationFailed:
		return s.toAdmin(renderFailure(ev))
	default:
		return nil
	}
}

func (s *TelegramSink) toAdmin(text string) error {
	if s.adminChatID == 0 {
		return nil
	}
	return s.send(s.adminChatID, text)
}

func (s *TelegramSink) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := s.sender.Send(msg)
	return err
}
