package domain

import "time"

// TokenService mints and verifies bearer tokens carrying an Actor.
type TokenService interface {
	Issue(actor Actor, ttl time.Duration) (string, error)
	Parse(raw string) (Actor, error)
}
