// Package lifecycle holds shared constants for component start/stop handling.
package lifecycle

import "time"

// DefaultTimeout bounds graceful startup and shutdown of infrastructure
// components such as database connections and HTTP servers.
const DefaultTimeout = 10 * time.Second
