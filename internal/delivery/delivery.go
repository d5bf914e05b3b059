// Package delivery defines the contract every serving component implements.
// Servers are collected into the "deliveries" Fx group and started together.
package delivery

import "context"

// Delivery is a long-running serving component such as an HTTP server or a
// background sweeper. Serve blocks until the component stops or fails.
type Delivery interface {
	Serve(ctx context.Context) error
}
