// Package auth binds the API caller's identity to the request context.
// The authorizer's relayer gate and the policy keeper's self-service
// check both read the caller from here.
package auth

import (
	"context"
	"errors"

	"github.com/veilcash/pullauth/pkg/contracts"
)

// Caller is the authenticated submitter of a request.
type Caller struct {
	Address contracts.Address
	Subject string // token subject, for logs
}

type callerKey struct{}

// ErrNoCaller indicates the context carries no authenticated caller.
var ErrNoCaller = errors.New("auth: no caller in context")

// WithCaller attaches a Caller to the context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom retrieves the Caller from the context.
func CallerFrom(ctx context.Context) (Caller, error) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	if !ok {
		return Caller{}, ErrNoCaller
	}
	return c, nil
}
