// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"persona_reminder_bot/internal/domain/notifier"

	"gopkg.in/telebot.v3"
)

const (
	callbackPrefixOpen  = "notif_open_"
	callbackPrefixClose = "notif_close_"
)

// TelebotNotifier implements the notifier.Client interface on top of
// gopkg.in/telebot.v3: a fired reminder becomes a chat message with inline
// buttons, and button presses are reported back as click/close events.
type TelebotNotifier struct {
	bot    *telebot.Bot
	chatID int64

	mu       sync.Mutex
	clickFns []func(tag, action string)
	closeFns []func(tag string)
}

func NewTelebotNotifier(b *telebot.Bot, chatID int64) *TelebotNotifier {
	return &TelebotNotifier{bot: b, chatID: chatID}
}

// RequestPermission maps the platform permission model onto Telegram: a
// configured recipient chat is authorization to message it.
func (n *TelebotNotifier) RequestPermission(_ context.Context) (notifier.Permission, error) {
	if n.chatID == 0 {
		return notifier.PermissionDefault, nil
	}
	return notifier.PermissionGranted, nil
}

func (n *TelebotNotifier) Show(_ context.Context, msg notifier.Notification) error {
	text := fmt.Sprintf("🔔 %s\n\n%s", msg.Title, msg.Body)

	replyMarkup := &telebot.ReplyMarkup{}
	btnOpen := replyMarkup.Data("確認する", callbackPrefixOpen+msg.Tag)
	btnClose := replyMarkup.Data("閉じる", callbackPrefixClose+msg.Tag)
	replyMarkup.Inline(replyMarkup.Row(btnOpen, btnClose))

	recipient := &telebot.User{ID: n.chatID}
	_, err := n.bot.Send(recipient, text, &telebot.SendOptions{ReplyMarkup: replyMarkup})
	return err
}

func (n *TelebotNotifier) OnClick(fn func(tag, action string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clickFns = append(n.clickFns, fn)
}

func (n *TelebotNotifier) OnClose(fn func(tag string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closeFns = append(n.closeFns, fn)
}

// RegisterCallbacks wires the inline-button callback handler. Unrecognized
// callbacks are acknowledged without action so the button spinner clears.
func (n *TelebotNotifier) RegisterCallbacks(b *telebot.Bot) {
	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := strings.TrimSpace(c.Callback().Data)
		// telebot prefixes callback data with "\f".
		data = strings.TrimPrefix(data, "\f")

		switch {
		case strings.HasPrefix(data, callbackPrefixOpen):
			n.dispatchClick(strings.TrimPrefix(data, callbackPrefixOpen), "explore")
			return c.Respond(&telebot.CallbackResponse{Text: "確認しました"})
		case strings.HasPrefix(data, callbackPrefixClose):
			tag := strings.TrimPrefix(data, callbackPrefixClose)
			n.dispatchClick(tag, "close")
			n.dispatchClose(tag)
			return c.Respond()
		default:
			return c.Respond()
		}
	})
}

func (n *TelebotNotifier) dispatchClick(tag, action string) {
	n.mu.Lock()
	fns := append([](func(tag, action string))(nil), n.clickFns...)
	n.mu.Unlock()
	for _, fn := range fns {
		fn(tag, action)
	}
}

func (n *TelebotNotifier) dispatchClose(tag string) {
	n.mu.Lock()
	fns := append([](func(tag string))(nil), n.closeFns...)
	n.mu.Unlock()
	for _, fn := range fns {
		fn(tag)
	}
}
