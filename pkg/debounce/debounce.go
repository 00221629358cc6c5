package debounce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so a
// slow caller cannot release a window opened by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Guard suppresses repeated submissions of the same action within a window
// and remembers processed event ids.
type Guard struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
	seen   time.Duration
}

// Option configures a Guard.
type Option func(*Guard)

// WithPrefix namespaces every key written by the guard.
func WithPrefix(prefix string) Option {
	return func(g *Guard) { g.prefix = prefix }
}

// WithWindow sets how long an acquired action key blocks repeats.
func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithSeenTTL sets how long processed event ids are remembered.
func WithSeenTTL(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.seen = d
		}
	}
}

// New creates a Guard. It panics on a nil client.
func New(client redis.UniversalClient, opts ...Option) *Guard {
	if client == nil {
		panic("debounce: redis client is required")
	}
	g := &Guard{
		client: client,
		prefix: "clubkit:debounce:",
		window: 5 * time.Second,
		seen:   72 * time.Hour,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire opens a debounce window for key. It returns ErrDuplicate while a
// previous window is still open. The returned release closes the window early.
func (g *Guard) Acquire(ctx context.Context, key string) (release func(context.Context) error, err error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	full := g.prefix + "action:" + key
	ok, err := g.client.SetNX(ctx, full, token, g.window).Result()
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	if !ok {
		return nil, ErrDuplicate
	}

	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, g.client, []string{full}, token).Err()
	}, nil
}

// Do runs fn inside a debounce window for key. A failed fn releases the
// window so the caller can retry right away; a successful one keeps it open.
func (g *Guard) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	release, err := g.Acquire(ctx, key)
	if err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			return errors.Join(err, relErr)
		}
		return err
	}
	return nil
}

// FirstSeen records id and reports whether this is its first occurrence.
// Used to drop redelivered webhook events.
func (g *Guard) FirstSeen(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyKey
	}
	ok, err := g.client.SetNX(ctx, g.prefix+"seen:"+id, time.Now().Unix(), g.seen).Result()
	if err != nil {
		return false, errors.Join(ErrUnavailable, err)
	}
	return ok, nil
}

// Forget removes id from the seen set, typically after processing failed.
func (g *Guard) Forget(ctx context.Context, id string) error {
	return g.client.Del(ctx, g.prefix+"seen:"+id).Err()
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
