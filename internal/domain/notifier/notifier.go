// internal/domain/notifier/notifier.go
package notifier

import "context"

// Permission mirrors the three-state authorization model of platform
// notification surfaces.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// Notification is the payload handed to the emitter at fire time.
type Notification struct {
	Title              string
	Body               string
	Tag                string // stable per reminder, used to correlate click/close events
	RequireInteraction bool
}

// Client is the notification emitter capability. The core only ever talks to
// this interface; the concrete surface (Telegram chat, push channel test
// fakes) lives in infra. Show must only be called after RequestPermission
// returned PermissionGranted.
type Client interface {
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, n Notification) error
	// OnClick and OnClose register callbacks for asynchronous user
	// interaction with a shown notification, keyed by its tag.
	OnClick(fn func(tag, action string))
	OnClose(fn func(tag string))
}
