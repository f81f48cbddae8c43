// Package httpmiddleware provides the HTTP middleware shared by all services.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler with additional behaviour.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware in the list becomes the
// outermost one.
func Wrap(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
