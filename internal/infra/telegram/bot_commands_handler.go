// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"persona_reminder_bot/internal/app"
	"persona_reminder_bot/internal/domain/notifier"
	"persona_reminder_bot/internal/domain/reminder"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// RegisterBotCommands wires the user-facing command surface. The selected
// persona is chat-level state, mirroring the character carousel: it applies
// to every reminder created until changed.
func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	svc *app.ReminderService,
	nc notifier.Client,
	baseLogger *logrus.Entry,
) {
	var personaMu sync.Mutex
	currentPersona := reminder.PersonaFriend

	selectedPersona := func() reminder.Persona {
		personaMu.Lock()
		defer personaMu.Unlock()
		return currentPersona
	}

	b.Handle("/start", func(c telebot.Context) error {
		logCtx := baseLogger.WithField("command", "/start").WithField("sender_id", c.Sender().ID)
		logCtx.Info("Processing /start command")
		return c.Send("こんにちは！伝言を預かって、あとで通知としてお届けします。/help でコマンド一覧を確認できます。")
	})

	b.Handle("/help", func(c telebot.Context) error {
		var helpText strings.Builder
		helpText.WriteString("使い方:\n\n")
		helpText.WriteString("`/persona [friend|auntie|uncle]`\n - キャラクターを選ぶ（引数なしで一覧表示）。\n\n")
		helpText.WriteString("`/remind <分> <伝言>`\n - 1〜30分後に一度だけ通知。\n\n")
		helpText.WriteString("`/remind_snooze <分> <伝言>`\n - 通知後、止めるまで5分おきに再通知。\n\n")
		helpText.WriteString("`/weekly <HH:MM> <mon,wed,fri> <伝言>`\n - 毎週指定した曜日・時刻に通知。\n\n")
		helpText.WriteString("`/list`\n - 伝言の一覧。\n\n")
		helpText.WriteString("`/toggle <ID>` / `/delete <ID>`\n - 伝言のオン・オフと削除。\n\n")
		helpText.WriteString("`/test`\n - 即座にテスト通知を表示。")
		return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})

	b.Handle("/persona", func(c telebot.Context) error {
		args := c.Args()
		if len(args) == 0 {
			var names []string
			for _, p := range reminder.Personas {
				names = append(names, fmt.Sprintf("%s (%s)", strings.ToLower(string(p)), p.DisplayName()))
			}
			return c.Send("選べるキャラクター: " + strings.Join(names, ", "))
		}

		p := reminder.Persona(strings.ToUpper(args[0]))
		if !p.Valid() {
			return c.Send("そのキャラクターは知りません。/persona で一覧を確認してください。")
		}
		personaMu.Lock()
		currentPersona = p
		personaMu.Unlock()
		return c.Send(fmt.Sprintf("%s が伝言を預かります。", p.DisplayName()))
	})

	submitAndReply := func(c telebot.Context, logCtx *logrus.Entry, input app.SubmitInput) error {
		rec, err := svc.Submit(ctx, input)
		if err != nil {
			if app.IsValidation(err) {
				logCtx.WithError(err).Info("Submission rejected")
				return c.Send("伝言を預かれませんでした: " + err.Error())
			}
			logCtx.WithError(err).Error("Submission failed")
			return c.Send("伝言の作成に失敗しました。あとでもう一度試してください。")
		}
		return c.Send(fmt.Sprintf("伝言を託しました！（ID: %d）", rec.ID))
	}

	oneShotHandler := func(command string, snooze bool) func(telebot.Context) error {
		return func(c telebot.Context) error {
			logCtx := baseLogger.WithField("command", command).WithField("sender_id", c.Sender().ID)
			args := c.Args()
			if len(args) < 2 {
				return c.Send(fmt.Sprintf("使い方: %s <分> <伝言>", command))
			}
			minutes, err := strconv.Atoi(args[0])
			if err != nil {
				return c.Send("分は数字で指定してください。")
			}
			return submitAndReply(c, logCtx, app.SubmitInput{
				Message:       strings.Join(args[1:], " "),
				Persona:       selectedPersona(),
				Kind:          reminder.KindOneShot,
				DelayMinutes:  minutes,
				SnoozeEnabled: snooze,
			})
		}
	}

	b.Handle("/remind", oneShotHandler("/remind", false))
	b.Handle("/remind_snooze", oneShotHandler("/remind_snooze", true))

	b.Handle("/weekly", func(c telebot.Context) error {
		logCtx := baseLogger.WithField("command", "/weekly").WithField("sender_id", c.Sender().ID)
		args := c.Args()
		if len(args) < 3 {
			return c.Send("使い方: /weekly <HH:MM> <mon,wed,fri> <伝言>")
		}

		tod, err := parseTimeOfDay(args[0])
		if err != nil {
			return c.Send("時刻は HH:MM 形式で指定してください。")
		}
		weekdays, err := parseWeekdays(args[1])
		if err != nil {
			return c.Send("曜日は mon,tue,wed,thu,fri,sat,sun をカンマ区切りで指定してください。")
		}

		return submitAndReply(c, logCtx, app.SubmitInput{
			Message:   strings.Join(args[2:], " "),
			Persona:   selectedPersona(),
			Kind:      reminder.KindRecurring,
			TimeOfDay: tod,
			Weekdays:  weekdays,
		})
	})

	b.Handle("/list", func(c telebot.Context) error {
		recs := svc.List()
		if len(recs) == 0 {
			return c.Send("まだ伝言がありません。")
		}

		var sb strings.Builder
		for _, rec := range recs {
			marker := "🔕"
			if rec.Active {
				marker = "🔔"
			}
			sb.WriteString(fmt.Sprintf("%s [%d] %s: %s\n    %s\n", marker, rec.ID, rec.Persona.DisplayName(), rec.Message, describeTrigger(rec)))
		}
		return c.Send(sb.String())
	})

	b.Handle("/toggle", func(c telebot.Context) error {
		logCtx := baseLogger.WithField("command", "/toggle").WithField("sender_id", c.Sender().ID)
		id, err := parseIDArg(c)
		if err != nil {
			return c.Send("使い方: /toggle <ID>")
		}
		rec, err := svc.Toggle(ctx, id)
		if err != nil {
			logCtx.WithError(err).WithField("reminder_id", id).Warn("Toggle failed")
			return c.Send("その伝言が見つかりませんでした。")
		}
		if rec.Active {
			return c.Send(fmt.Sprintf("伝言 %d をオンにしました。", id))
		}
		return c.Send(fmt.Sprintf("伝言 %d をオフにしました。", id))
	})

	b.Handle("/delete", func(c telebot.Context) error {
		logCtx := baseLogger.WithField("command", "/delete").WithField("sender_id", c.Sender().ID)
		id, err := parseIDArg(c)
		if err != nil {
			return c.Send("使い方: /delete <ID>")
		}
		if err := svc.Remove(ctx, id); err != nil {
			logCtx.WithError(err).WithField("reminder_id", id).Error("Delete failed")
			return c.Send("伝言の削除に失敗しました。")
		}
		return c.Send(fmt.Sprintf("伝言 %d を削除しました。", id))
	})

	b.Handle("/test", func(c telebot.Context) error {
		logCtx := baseLogger.WithField("command", "/test").WithField("sender_id", c.Sender().ID)
		err := nc.Show(ctx, notifier.Notification{
			Title: "テスト通知",
			Body:  "即座通知のテストです。この通知が表示されれば配信は正常に動作しています。",
			Tag:   "test-immediate",
		})
		if err != nil {
			logCtx.WithError(err).Error("Test notification failed")
			return c.Send("テスト通知の表示に失敗しました。")
		}
		return nil
	})
}

func parseIDArg(c telebot.Context) (int64, error) {
	args := c.Args()
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one argument")
	}
	return strconv.ParseInt(args[0], 10, 64)
}

func parseTimeOfDay(raw string) (reminder.TimeOfDay, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return reminder.TimeOfDay{}, fmt.Errorf("malformed time %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return reminder.TimeOfDay{}, err
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return reminder.TimeOfDay{}, err
	}
	tod := reminder.TimeOfDay{Hour: hour, Minute: minute}
	if !tod.Valid() {
		return reminder.TimeOfDay{}, fmt.Errorf("time %q out of range", raw)
	}
	return tod, nil
}

func parseWeekdays(raw string) (reminder.WeekdaySet, error) {
	var set reminder.WeekdaySet
	for _, name := range strings.Split(raw, ",") {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		if !set.Contains(day) {
			set = append(set, day)
		}
	}
	if !set.Valid() {
		return nil, fmt.Errorf("no weekdays given")
	}
	return set, nil
}

func describeTrigger(rec *reminder.Reminder) string {
	if rec.Kind == reminder.KindOneShot {
		suffix := ""
		if rec.SnoozeEnabled {
			suffix = "（スヌーズあり）"
		}
		return rec.FireAt.Format("2006-01-02 15:04") + " に通知" + suffix
	}

	names := make([]string, len(rec.Weekdays))
	for i, w := range rec.Weekdays {
		names[i] = []string{"日", "月", "火", "水", "木", "金", "土"}[int(w)]
	}
	return fmt.Sprintf("%s (%s)", rec.TimeOfDay, strings.Join(names, ","))
}
