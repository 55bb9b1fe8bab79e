package oauth2

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/common/utils"
)

// DefaultReauthWindow is the minimum spacing between two reactive
// re-authentications of one application.
const DefaultReauthWindow = 10 * time.Second

// ReauthFuse refuses a re-authentication requested within window of the
// last successful one for the same application. Each application gets a
// token bucket of size one, drained by Record and refilled once per window.
// Failed attempts never drain it. A window <= 0 disables the fuse.
type ReauthFuse struct {
	mu       sync.Mutex
	window   time.Duration
	clock    utils.Clock
	limiters map[string]*rate.Limiter
}

// NewReauthFuse creates a fuse. A nil clock uses the system clock.
func NewReauthFuse(window time.Duration, clock utils.Clock) *ReauthFuse {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ReauthFuse{
		window:   window,
		clock:    clock,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Check returns a reauth_too_frequent error if the application last
// re-authenticated successfully less than window ago. It consumes nothing.
func (f *ReauthFuse) Check(application string) error {
	if f == nil || f.window <= 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	limiter, ok := f.limiters[application]
	if ok && limiter.TokensAt(f.clock.Now()) < 1 {
		return errors.TooFrequentReauthError(application, f.window)
	}
	return nil
}

// Record marks a successful re-authentication and starts a new window.
func (f *ReauthFuse) Record(application string) {
	if f == nil || f.window <= 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	limiter := rate.NewLimiter(rate.Every(f.window), 1)
	limiter.AllowN(f.clock.Now(), 1)
	f.limiters[application] = limiter
}

// Window returns the configured window.
func (f *ReauthFuse) Window() time.Duration {
	return f.window
}

// Reset forgets every application's last re-authentication.
func (f *ReauthFuse) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limiters = make(map[string]*rate.Limiter)
}
