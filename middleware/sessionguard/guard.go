// Package sessionguard gates fiber routes on the portal session state. It is
// the HTTP rendition of the route guards: authenticated-only by default,
// role-restricted when the guard carries an allowed role set.
package sessionguard

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	portal "github.com/olympiadhub/go-portal"
)

// ContextKey is where the middleware stores the resolved identity for
// downstream handlers.
const ContextKey = "portal_identity"

type Config struct {
	// Store is the session store backing every decision. Required.
	Store *portal.SessionStore
	// Guard decides the navigation; defaults to authenticated-only.
	Guard portal.Guard
	// Filter skips the middleware when it returns true.
	Filter func(*fiber.Ctx) bool
	// SettleTimeout bounds how long a request waits for the bootstrap
	// check before getting the wait response. Guards never redirect while
	// the store is bootstrapping.
	SettleTimeout time.Duration
	// WaitHandler serves requests that arrive before the store settles.
	WaitHandler fiber.Handler
}

const defaultSettleTimeout = 5 * time.Second

// New returns a fiber middleware enforcing the guard.
func New(config Config) fiber.Handler {
	if config.Store == nil {
		panic("sessionguard: missing session store")
	}

	cfg := config
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettleTimeout
	}
	if cfg.WaitHandler == nil {
		cfg.WaitHandler = defaultWaitHandler
	}
	if cfg.Guard.LoginPath == "" && cfg.Guard.DeniedPath == "" && cfg.Guard.AllowedRoles == nil {
		cfg.Guard = portal.RequireAuthenticated()
	}

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		if cfg.Store.State() == portal.StateBootstrapping {
			ctx, cancel := context.WithTimeout(c.UserContext(), cfg.SettleTimeout)
			defer cancel()
			if err := cfg.Store.WaitReady(ctx); err != nil {
				return cfg.WaitHandler(c)
			}
		}

		decision := cfg.Guard.Check(cfg.Store)
		switch decision.Outcome {
		case portal.GuardAllow:
			if identity, ok := cfg.Store.Identity(); ok {
				c.Locals(ContextKey, identity)
			}
			return c.Next()
		case portal.GuardWait:
			return cfg.WaitHandler(c)
		default:
			status := http.StatusSeeOther
			if c.Method() == fiber.MethodGet {
				status = http.StatusFound
			}
			return c.Redirect(decision.Target, status)
		}
	}
}

// IdentityFromCtx returns the identity the middleware resolved for this
// request, if any.
func IdentityFromCtx(c *fiber.Ctx) (*portal.Identity, bool) {
	identity, ok := c.Locals(ContextKey).(*portal.Identity)
	return identity, ok
}

func defaultWaitHandler(c *fiber.Ctx) error {
	c.Set(fiber.HeaderRetryAfter, "1")
	return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
		"status": "loading",
	})
}
