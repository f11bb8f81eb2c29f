// Package gateway validates write requests and forwards them to the
// external store.
//
// The gateway never touches the value cache. A successful write shows up
// in the cache only when the store reports the change back through the
// mirror engine.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/nerrad567/nexowatt-vis/internal/points"
)

// Failure reasons.
const (
	ReasonBadRequest    = "bad_request"
	ReasonForbidden     = "forbidden"
	ReasonNotConfigured = "not_configured"
	ReasonInternal      = "internal_error"
)

// Writer is the store's write primitive.
type Writer interface {
	WriteValue(ctx context.Context, externalID string, value any) error
}

// Authorizer validates session tokens.
type Authorizer interface {
	IsAuthorized(token string) bool
}

// Result is the outcome of a write.
type Result struct {
	OK         bool
	Reason     string
	LogicalKey string
	ExternalID string

	// Err carries the store error for internal_error results. It is for
	// logging only and is never sent to clients.
	Err error
}

// Status maps the result to an HTTP status code.
func (r Result) Status() int {
	switch {
	case r.OK:
		return http.StatusOK
	case r.Reason == ReasonBadRequest:
		return http.StatusBadRequest
	case r.Reason == ReasonForbidden:
		return http.StatusForbidden
	case r.Reason == ReasonNotConfigured:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// Gateway forwards validated writes.
type Gateway struct {
	resolver *points.Resolver
	auth     Authorizer
	store    Writer
}

// New creates a gateway.
func New(resolver *points.Resolver, auth Authorizer, store Writer) *Gateway {
	return &Gateway{resolver: resolver, auth: auth, store: store}
}

// Write sets key in scope to value. A privileged scope requires token to
// be the active session token; the check happens before the key is
// resolved so an unauthenticated caller learns nothing about the table.
func (g *Gateway) Write(ctx context.Context, scope, key string, value any, token string) Result {
	if scope == "" || key == "" {
		return Result{Reason: ReasonBadRequest}
	}
	if g.resolver.IsPrivileged(scope) && !g.auth.IsAuthorized(token) {
		return Result{Reason: ReasonForbidden}
	}

	logicalKey, externalID, ok := g.resolver.ResolveScoped(scope, key)
	if !ok {
		return Result{Reason: ReasonNotConfigured}
	}

	res := Result{LogicalKey: logicalKey, ExternalID: externalID}
	if err := g.store.WriteValue(ctx, externalID, value); err != nil {
		res.Reason = ReasonInternal
		res.Err = err
		return res
	}
	res.OK = true
	return res
}

// ErrorOf returns res.Err or a generic error for failed results.
func ErrorOf(res Result) error {
	if res.OK {
		return nil
	}
	if res.Err != nil {
		return res.Err
	}
	return errors.New(res.Reason)
}
