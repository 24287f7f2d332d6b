// Package auth checks a resolved caller against the capability an operation
// needs. Authenticating the transport is left to whatever sits in front of
// the venue.
package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/efreitasn/venue/internal/domain"
)

// Perm is a capability bitmask.
type Perm uint32

const (
	PermNone  Perm = 0
	PermAdmin Perm = 0x1
	PermTrade Perm = 0x2
)

// Has reports whether p carries every bit of want.
func (p Perm) Has(want Perm) bool {
	return p&want == want
}

func (p Perm) String() string {
	switch p {
	case PermNone:
		return "none"
	case PermAdmin:
		return "admin"
	case PermTrade:
		return "trade"
	case PermAdmin | PermTrade:
		return "admin|trade"
	}
	return strconv.FormatUint(uint64(p), 10)
}

// ParsePerm parses a decimal bitmask. An empty string is PermNone.
func ParsePerm(s string) (Perm, error) {
	if s == "" {
		return PermNone, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return PermNone, &domain.ValidationError{Message: "invalid permissions"}
	}
	return Perm(v), nil
}

// Caller is the identity an operation runs as.
type Caller struct {
	Accnt string
	Perm  Perm
}

// System is the caller background jobs such as settlement run as.
var System = Caller{Accnt: "SYSTEM", Perm: PermAdmin | PermTrade}

// Authorize returns ErrUnauthenticated when the caller has no account and
// ErrUnauthorized when it lacks the capability. The two are never collapsed.
func Authorize(c Caller, need Perm) error {
	if c.Accnt == "" {
		return domain.ErrUnauthenticated
	}
	if !c.Perm.Has(need) {
		return fmt.Errorf("%s requires %s: %w", c.Accnt, need, domain.ErrUnauthorized)
	}
	return nil
}

type callerKey struct{}

// WithCaller returns a context carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// FromContext returns the caller stored in ctx, or the zero Caller.
func FromContext(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}
