// Package kit is the transport glue shared by darkzap services: a typed-less
// Endpoint, middleware chaining, context helpers and MCP tool registration.
package kit

import "context"

// Endpoint is a transport-agnostic handler. req and the response are the
// decoded request and the JSON-serializable result.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
