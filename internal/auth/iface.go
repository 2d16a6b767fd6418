package auth

import "context"

// Provider is the authentication interface used by the GQL, pub-sub and
// watcher clients. *Authenticator satisfies this interface.
type Provider interface {
	Login(ctx context.Context) error
	LoggedIn() bool
	AuthToken() string
	UserID() string
	Username() string
	DeviceID() string
	SessionID() string
	Headers() map[string]string
	Invalidate()
}
