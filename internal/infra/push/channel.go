// internal/infra/push/channel.go
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"persona_reminder_bot/internal/domain/notifier"

	"github.com/sirupsen/logrus"
)

// Message envelope types understood by the channel.
const (
	MessageSkipWaiting          = "SKIP_WAITING"
	MessageShowTestNotification = "SHOW_TEST_NOTIFICATION"
)

// Click actions carried by notification click reports.
const (
	ActionExplore = "explore"
	ActionClose   = "close"
)

// PushPayload is the JSON body of an incoming push.
type PushPayload struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	PrimaryKey int64  `json:"primaryKey"`
}

// MessageEnvelope is the typed inter-process message format.
type MessageEnvelope struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// ClickEvent reports user interaction with a shown notification.
type ClickEvent struct {
	Tag    string `json:"tag"`
	Action string `json:"action"` // explore | close | "" (notification body)
}

// Channel is the background delivery surface: a small HTTP listener that can
// trigger the same notification emitter independent of the command surface.
// It follows the install/activate lifecycle of its browser counterpart —
// requests are rejected until Activate has run.
type Channel struct {
	addr     string
	notifier notifier.Client
	logger   *logrus.Entry

	// onSkipWaiting is invoked when a SKIP_WAITING envelope arrives; the
	// process owner decides what "replace the running instance" means.
	onSkipWaiting func()

	mu        sync.Mutex
	installed bool
	activated bool
	clickFns  []func(ClickEvent)

	server *http.Server
}

func NewChannel(addr string, nc notifier.Client, logger *logrus.Entry, onSkipWaiting func()) *Channel {
	return &Channel{
		addr:          addr,
		notifier:      nc,
		logger:        logger,
		onSkipWaiting: onSkipWaiting,
	}
}

// Install sets up the handler routes. It must run before Activate.
func (ch *Channel) Install() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.installed {
		return fmt.Errorf("push channel already installed")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/push", ch.requireActive(ch.handlePush))
	mux.HandleFunc("/message", ch.requireActive(ch.handleMessage))
	mux.HandleFunc("/notificationclick", ch.requireActive(ch.handleNotificationClick))
	ch.server = &http.Server{
		Addr:              ch.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ch.installed = true
	ch.logger.WithField("addr", ch.addr).Info("Push channel installed")
	return nil
}

// Activate opens the channel for incoming traffic.
func (ch *Channel) Activate() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if !ch.installed {
		return fmt.Errorf("push channel not installed")
	}
	ch.activated = true
	ch.logger.Info("Push channel activated")
	return nil
}

// Start serves the channel until Shutdown. It blocks, so callers run it in a
// goroutine.
func (ch *Channel) Start() error {
	ch.mu.Lock()
	srv := ch.server
	ch.mu.Unlock()
	if srv == nil {
		return fmt.Errorf("push channel not installed")
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("push channel listener failed: %w", err)
	}
	return nil
}

func (ch *Channel) Shutdown(ctx context.Context) error {
	ch.mu.Lock()
	srv := ch.server
	ch.activated = false
	ch.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// OnNotificationClick registers a callback for click reports.
func (ch *Channel) OnNotificationClick(fn func(ClickEvent)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.clickFns = append(ch.clickFns, fn)
}

// Handler exposes the channel's HTTP handler, mainly for tests.
func (ch *Channel) Handler() http.Handler {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.server == nil {
		return nil
	}
	return ch.server.Handler
}

func (ch *Channel) requireActive(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch.mu.Lock()
		active := ch.activated
		ch.mu.Unlock()
		if !active {
			http.Error(w, "channel not activated", http.StatusServiceUnavailable)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (ch *Channel) handlePush(w http.ResponseWriter, r *http.Request) {
	var payload PushPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed push payload", http.StatusBadRequest)
		return
	}
	if payload.Title == "" {
		payload.Title = "プッシュ通知"
	}
	if payload.Body == "" {
		payload.Body = "新しい伝言があります"
	}

	n := notifier.Notification{
		Title: payload.Title,
		Body:  payload.Body,
		Tag:   fmt.Sprintf("push-%d", payload.PrimaryKey),
	}
	if err := ch.notifier.Show(r.Context(), n); err != nil {
		ch.logger.WithError(err).Error("Failed to show pushed notification")
		http.Error(w, "delivery failed", http.StatusBadGateway)
		return
	}
	ch.logger.WithField("primary_key", payload.PrimaryKey).Info("Push delivered")
	w.WriteHeader(http.StatusNoContent)
}

func (ch *Channel) handleMessage(w http.ResponseWriter, r *http.Request) {
	var env MessageEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "malformed message envelope", http.StatusBadRequest)
		return
	}

	switch env.Type {
	case MessageSkipWaiting:
		ch.logger.Info("SKIP_WAITING received")
		if ch.onSkipWaiting != nil {
			ch.onSkipWaiting()
		}
		w.WriteHeader(http.StatusNoContent)

	case MessageShowTestNotification:
		title := env.Title
		if title == "" {
			title = "テスト通知"
		}
		n := notifier.Notification{Title: title, Body: env.Body, Tag: "test-push"}
		if err := ch.notifier.Show(r.Context(), n); err != nil {
			ch.logger.WithError(err).Error("Failed to show test notification")
			http.Error(w, "delivery failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, fmt.Sprintf("unknown message type %q", env.Type), http.StatusBadRequest)
	}
}

func (ch *Channel) handleNotificationClick(w http.ResponseWriter, r *http.Request) {
	var event ClickEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "malformed click event", http.StatusBadRequest)
		return
	}

	ch.mu.Lock()
	fns := append([](func(ClickEvent))(nil), ch.clickFns...)
	ch.mu.Unlock()
	for _, fn := range fns {
		fn(event)
	}

	ch.logger.WithFields(logrus.Fields{"tag": event.Tag, "action": event.Action}).Debug("Notification click reported")
	w.WriteHeader(http.StatusNoContent)
}
