// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"errors"

	"pulse/internal/domain/entity"

	"github.com/google/uuid"
)

// ErrIdentityNotFound is a domain-specific error returned when an identity is not found.
var ErrIdentityNotFound = errors.New("identity not found")

// IdentityRepository defines the standard operations for identity persistence.
// The application layer depends on this interface, not the concrete implementation.
type IdentityRepository interface {
	// FindByID retrieves a single identity by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Identity, error)

	// FindByEmail retrieves a single identity by its email address.
	FindByEmail(ctx context.Context, email string) (*entity.Identity, error)

	// FindByProviderSubject retrieves the identity linked to an external
	// provider subject identifier.
	FindByProviderSubject(ctx context.Context, subject string) (*entity.Identity, error)

	// Create persists a new identity.
	Create(ctx context.Context, identity *entity.Identity) error

	// Update modifies an existing identity.
	Update(ctx context.Context, identity *entity.Identity) error

	// AcquireSessionMutex takes a row-level lock on the identity for the
	// duration of the surrounding transaction. The rotation protocol and the
	// session-limit check rely on it to serialize per-identity writes.
	AcquireSessionMutex(ctx context.Context, id uuid.UUID) error
}
