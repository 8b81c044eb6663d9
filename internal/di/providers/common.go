// Package providers contains the dependency injection provider
// functions for the Harmonia server.
package providers

import "time"

// shutdownTimeout bounds graceful shutdown of each service.
const shutdownTimeout = 10 * time.Second
