// Package middleware composes the net/http middleware stack used by the
// development server.
package middleware

import (
	"fmt"
	"net/http"

	"github.com/conneroisu/feasp/internal/config"
	"github.com/conneroisu/feasp/internal/logging"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// MiddlewareChain holds an ordered middleware stack.
//
// Middlewares run in the order they were added: the first one added is the
// outermost wrapper and sees the request first and the response last.
type MiddlewareChain struct {
	config      *config.Config
	logger      logging.Logger
	middlewares []Middleware
}

// MiddlewareDependencies contains the dependencies of the default stack.
type MiddlewareDependencies struct {
	Config *config.Config
	Logger logging.Logger
}

// NewMiddlewareChain builds the default stack, outermost first: request
// logging, panic recovery, security headers.
func NewMiddlewareChain(deps MiddlewareDependencies) *MiddlewareChain {
	if deps.Config == nil {
		panic("MiddlewareChain: config cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}

	chain := &MiddlewareChain{
		config:      deps.Config,
		logger:      deps.Logger.WithComponent("http"),
		middlewares: make([]Middleware, 0, 4),
	}
	chain.buildDefaultStack()
	return chain
}

func (mc *MiddlewareChain) buildDefaultStack() {
	mc.AddMiddleware(Logging(mc.logger))
	mc.AddMiddleware(Recovery(mc.logger))
	mc.AddMiddleware(SecurityHeaders(mc.config.IsDevelopment()))
}

// AddMiddleware appends a middleware inside the ones already added.
func (mc *MiddlewareChain) AddMiddleware(middleware Middleware) {
	mc.middlewares = append(mc.middlewares, middleware)
}

// Apply wraps handler with the whole chain.
//
// With middlewares [A, B, C] and handler H the result is A(B(C(H))).
func (mc *MiddlewareChain) Apply(handler http.Handler) http.Handler {
	if handler == nil {
		panic("MiddlewareChain.Apply: handler cannot be nil")
	}

	wrapped := handler
	for i := len(mc.middlewares) - 1; i >= 0; i-- {
		middleware := mc.middlewares[i]
		if middleware == nil {
			panic(fmt.Sprintf("MiddlewareChain.Apply: middleware at index %d is nil", i))
		}
		wrapped = middleware(wrapped)
		if wrapped == nil {
			panic(fmt.Sprintf("MiddlewareChain.Apply: middleware at index %d returned nil handler", i))
		}
	}
	return wrapped
}

// Len returns the number of middlewares in the chain.
func (mc *MiddlewareChain) Len() int {
	return len(mc.middlewares)
}
