package adapter

import (
	"context"
)

// Adapter defines the interface every external-system adapter must implement.
// An adapter owns its system's wire format, payload validation and
// authentication; the gateway only routes named methods to it and wraps the
// invocation in resilience controls.
type Adapter interface {
	// Name returns the target identifier the adapter is registered under
	Name() string

	// Methods returns the method names the adapter supports
	Methods() []string

	// Invoke executes a named method with named parameters. Implementations
	// must honor ctx cancellation so a hung external call does not pin
	// resources; the result is a plain value or an error.
	Invoke(ctx context.Context, method string, params map[string]interface{}) (interface{}, error)

	// HealthCheck verifies the external system is reachable
	HealthCheck(ctx context.Context) error
}

// Info describes a registered adapter for the observability surface
type Info struct {
	Name    string   `json:"name"`
	Methods []string `json:"methods"`
}

// HasMethod reports whether the adapter exposes the named method
func HasMethod(a Adapter, method string) bool {
	for _, m := range a.Methods() {
		if m == method {
			return true
		}
	}
	return false
}
