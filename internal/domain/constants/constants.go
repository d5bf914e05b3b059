// Package constants defines shared domain-level constant values.
package constants

// Deployment environment names used in configuration.
const (
	EnvDevelop    = "develop"
	EnvProduction = "production"
)

// Pub/Sub provider identifiers used in configuration.
const (
	PubSubProviderLocal  = "local"
	PubSubProviderGoogle = "google"
)

// Security event types published to the event stream.
const (
	SecurityEventLogin          = "login"
	SecurityEventTheftDetected  = "token_theft_detected"
	SecurityEventSessionsRevoke = "sessions_revoked"
)
