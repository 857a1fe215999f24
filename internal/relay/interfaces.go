package relay

import (
	"context"
	"time"
)

// Upstream returns fresh listings from the bot-management API.
type Upstream interface {
	ListBots(ctx context.Context) ([]Bot, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// RegistrationStore keeps registrations keyed by alt account, then bot name.
// A single Put must be atomic with respect to concurrent Get/Put on the same key.
type RegistrationStore interface {
	Put(ctx context.Context, reg Registration) error
	Get(ctx context.Context, altAccount, botName string) (Registration, error)
	List(ctx context.Context, altAccount string) ([]Registration, error)
	Delete(ctx context.Context, altAccount, botName string) error
	Accounts(ctx context.Context) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
