package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"worktime/internal/model"
	"worktime/internal/notify"
	"worktime/internal/service"
)

const timeLayout = "02.01.2006 15:04"

func escape(s string) string {
	return html.EscapeString(s)
}

// formatMinutes renders a duration as "3 ч 05 мин".
func formatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%d мин", m)
	case m == 0:
		return fmt.Sprintf("%d ч", h)
	default:
		return fmt.Sprintf("%d ч %02d мин", h, m)
	}
}

func formatHours(h float64) string {
	return fmt.Sprintf("%.1f ч", h)
}

func nameOr(username string, userID int64) string {
	if strings.TrimSpace(username) == "" {
		return fmt.Sprintf("id%d", userID)
	}
	return username
}

func renderSessionEnded(ev notify.SessionEnded, loc *time.Location) string {
	var sb strings.Builder
	switch {
	case ev.AutoEnded:
		sb.WriteString("⏱ <b>Смена закрыта автоматически</b>\n")
		sb.WriteString("Сессия превысила лимит и была завершена.\n\n")
	case ev.ClosedByAdmin:
		sb.WriteString("⏹ <b>Смена завершена администратором</b>\n\n")
	default:
		sb.WriteString("✅ <b>Смена завершена</b>\n\n")
	}
	sb.WriteString(fmt.Sprintf("• Начало: %s\n", ev.Start.In(loc).Format(timeLayout)))
	sb.WriteString(fmt.Sprintf("• Конец: %s\n", ev.End.In(loc).Format(timeLayout)))
	sb.WriteString(fmt.Sprintf("• Длительность: <b>%s</b>", formatMinutes(ev.Minutes)))
	return sb.String()
}

func renderAutoEndedAdmin(ev notify.SessionEnded) string {
	return fmt.Sprintf("⏱ Смена пользователя %s закрыта автоматически (%s).",
		escape(nameOr(ev.Username, ev.UserID)), formatMinutes(ev.Minutes))
}

func renderReminder(r notify.ReminderDue) string {
	return fmt.Sprintf(
		"⏰ <b>Напоминание о цели</b>\nДневная цель ещё не выполнена.\n\n"+
			"• Цель: %s\n• Выполнено: %s\n• Осталось: %s\n\n"+
			"Начни смену командой /begin.",
		formatHours(r.GoalHours), formatHours(r.CompletedHours), formatHours(r.RemainingHours),
	)
}

func renderStatus(st *service.UserStats, loc *time.Location) string {
	if st == nil || st.Active == nil {
		return "💤 Сейчас смена не идёт. Начать: /begin"
	}
	var sb strings.Builder
	sb.WriteString("🟢 <b>Смена идёт</b>\n")
	sb.WriteString(fmt.Sprintf("• Начало: %s\n", st.Active.StartTime.In(loc).Format(timeLayout)))
	sb.WriteString(fmt.Sprintf("• Прошло: <b>%s</b>", formatMinutes(st.ActiveMinutes)))
	if st.NearLimit {
		sb.WriteString("\n\n⚠️ Смена близка к лимиту и скоро будет закрыта автоматически.")
	}
	return sb.String()
}

func renderHistory(sessions []model.Session, loc *time.Location) string {
	if len(sessions) == 0 {
		return "📭 Завершённых смен пока нет."
	}
	var sb strings.Builder
	sb.WriteString("🗂 <b>Последние смены</b>\n")
	for _, s := range sessions {
		mark := ""
		if s.AutoEnded {
			mark = " ⏱"
		}
		sb.WriteString(fmt.Sprintf("• %s · %s%s\n", s.StartTime.In(loc).Format(timeLayout), formatMinutes(s.Minutes()), mark))
	}
	return strings.TrimSpace(sb.String())
}

var periodTitles = map[model.Period]string{
	model.PeriodDaily:   "за сегодня",
	model.PeriodWeekly:  "за неделю",
	model.PeriodMonthly: "за месяц",
	model.PeriodOverall: "за всё время",
}

func renderTop(period model.Period, standings []model.Standing) string {
	if len(standings) == 0 {
		return fmt.Sprintf("🏆 Рейтинг %s пока пуст.", periodTitles[period])
	}
	medals := []string{"🥇", "🥈", "🥉"}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🏆 <b>Рейтинг %s</b>\n", periodTitles[period]))
	for i, s := range standings {
		place := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			place = medals[i]
		}
		sb.WriteString(fmt.Sprintf("%s %s — %s (%d)\n", place, escape(nameOr(s.Username, s.UserID)), formatMinutes(s.TotalMinutes), s.SessionsCount))
	}
	return strings.TrimSpace(sb.String())
}

func renderUserStats(st *service.UserStats) string {
	if st == nil {
		return "📭 Статистики пока нет. Начни первую смену: /begin"
	}
	var sb strings.Builder
	sb.WriteString("📊 <b>Моя статистика</b>\n\n")
	sb.WriteString(fmt.Sprintf("🎯 Цели: %s в день, %s в неделю\n",
		formatMinutes(st.User.DailyGoalMinutes), formatMinutes(st.User.WeeklyGoalMinutes)))
	sb.WriteString(fmt.Sprintf("📅 Неделя: %s (%d смен) · %.0f%% цели\n", formatMinutes(st.Week.Minutes), st.Week.Sessions, st.WeeklyPercent))
	sb.WriteString(fmt.Sprintf("🗓 Месяц: %s (%d смен)\n", formatMinutes(st.Month.Minutes), st.Month.Sessions))
	sb.WriteString(fmt.Sprintf("♾ Всего: %s (%d смен)", formatMinutes(st.Overall.Minutes), st.Overall.Sessions))
	if st.Active != nil {
		sb.WriteString(fmt.Sprintf("\n\n🟢 Текущая смена: %s", formatMinutes(st.ActiveMinutes)))
	}
	return sb.String()
}

func renderSystem(st *service.SystemStats, loc *time.Location) string {
	return fmt.Sprintf(
		"🖥 <b>Состояние системы</b>\n"+
			"• Пользователей: %d\n• Активных смен: %d\n• Завершённых смен: %d\n"+
			"• Смен сегодня: %d\n• Строк агрегатов: %d\n• Размер базы: %s\n\n<i>%s</i>",
		st.Users, st.ActiveSessions, st.EndedSessions, st.SessionsToday, st.RollupRows,
		formatBytes(st.DatabaseBytes), st.GeneratedAt.In(loc).Format(timeLayout),
	)
}

func renderDailyReport(r notify.DailyReport) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 <b>Отчёт за %s</b>\n\n", r.Day))
	sb.WriteString(fmt.Sprintf("• Сегодня: %d смен, %s\n", r.Today.Sessions, formatMinutes(r.Today.Minutes)))
	sb.WriteString(fmt.Sprintf("• Вчера: %d смен, %s\n", r.Yesterday.Sessions, formatMinutes(r.Yesterday.Minutes)))
	sb.WriteString(fmt.Sprintf("• Сейчас в смене: %d\n\n", r.Active))
	sb.WriteString(renderTop(model.PeriodDaily, r.Top))
	return sb.String()
}

func renderWeeklyReset(ev notify.WeeklyResetCompleted) string {
	return fmt.Sprintf("📊 Неделя %s сброшена: затронуто пользователей — %d.", ev.WeekStart, ev.UsersAffected)
}

func renderBackup(ev notify.BackupCompleted) string {
	return fmt.Sprintf("💾 Резервная копия создана: <code>%s</code> (%s)", escape(ev.Path), formatBytes(ev.SizeBytes))
}

func renderFailure(ev notify.OperationFailed) string {
	text := fmt.Sprintf("🚨 <b>Ошибка: %s</b>\n<pre>%s</pre>", escape(ev.Operation), escape(truncate(ev.Error, 1900)))
	if ev.UserID != 0 {
		text += fmt.Sprintf("\nПользователь: %d", ev.UserID)
	}
	return text
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d Б", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %sБ", float64(n)/float64(div), []string{"К", "М", "Г", "Т", "П"}[exp])
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
