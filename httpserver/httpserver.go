// Package httpserver defines the lifecycle of the HTTP servers the service runs.
package httpserver

import "io"

type Provider interface {
	Start() error
	io.Closer
}

// Runner starts serving in the background. The channel receives the serve
// error, or nil after a graceful Close, and is then closed.
type Runner interface {
	Run() <-chan error
}

type RunableProvider interface {
	Provider
	Runner
}
