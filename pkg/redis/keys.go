package redis

import "strings"

const keyNamespace = "sf"

// Every key this service writes lives under sf:<kind>:...
const (
	kindIdempotency = "idempotency"
	kindRateLimit   = "rate_limit"
	kindCounter     = "counter"
	kindSession     = "checkout_session"
	kindCooldown    = "submit_cooldown"
	kindLock        = "lock"
)

func key(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}

// IdempotencyKey is sf:idempotency:<scope>:<id>.
func (c *Client) IdempotencyKey(scope, id string) string { return key(kindIdempotency, scope, id) }

func (c *Client) RateLimitKey(scope string) string { return key(kindRateLimit, scope) }

func (c *Client) CounterKey(name string) string { return key(kindCounter, name) }

// SessionKey holds the JSON snapshot of a checkout session.
func (c *Client) SessionKey(sessionID string) string { return key(kindSession, sessionID) }

// CooldownKey marks a session that submitted an order recently.
func (c *Client) CooldownKey(sessionID string) string { return key(kindCooldown, sessionID) }

func (c *Client) LockKey(name string) string { return key(kindLock, name) }
