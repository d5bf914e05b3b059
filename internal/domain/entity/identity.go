// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Validation errors for Identity state transitions.
var (
	// ErrLastRole is returned when removing a role would leave the identity with none.
	ErrLastRole = errors.New("identity must keep at least one role")
	// ErrInvalidEmail is returned when the email does not parse as an address.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidName is returned when the display name is blank or too long.
	ErrInvalidName = errors.New("display name must be 1-100 non-blank characters")
)

const maxNameLength = 100

// Identity is the core entity of the system, representing a single person
// authenticated through the external identity provider. The provider subject
// is immutable once set; local roles are owned by this system, never by
// provider claims.
type Identity struct {
	ID              uuid.UUID  // The unique identifier for the identity.
	Email           string     // Primary contact email, unique across identities.
	Name            string     // Display name, 1-100 non-blank characters.
	ProviderSubject string     // Subject identifier assigned by the external provider. Immutable.
	Roles           Roles      // Role labels, always at least one, deduplicated.
	Active          bool       // Inactive identities are rejected by every authentication path.
	CreatedAt       time.Time  // Timestamp of when this identity was created.
	UpdatedAt       time.Time  // Timestamp of the last modification.
	DeletedAt       *time.Time // Soft-delete marker; nil while the identity exists.
}

// NewIdentity builds a new active identity with the default employee role.
func NewIdentity(subject, email, name string) (*Identity, error) {
	identity := &Identity{
		Email:           email,
		Name:            name,
		ProviderSubject: subject,
		Roles:           Roles{RoleEmployee},
		Active:          true,
	}
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	return identity, nil
}

// Validate checks the entity-level invariants.
func (u *Identity) Validate() error {
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return errors.Wrap(ErrInvalidEmail, u.Email)
	}
	if strings.TrimSpace(u.Name) == "" || len(u.Name) > maxNameLength {
		return ErrInvalidName
	}
	if len(u.Roles) == 0 {
		return ErrLastRole
	}

	return nil
}

// AddRole appends a role label; adding an already-held role is a no-op.
func (u *Identity) AddRole(role Role) {
	if u.Roles.Contains(role) {
		return
	}
	u.Roles = append(u.Roles, role)
}

// RemoveRole drops a role label. Removing the last remaining role is rejected
// so an identity always has at least one role.
func (u *Identity) RemoveRole(role Role) error {
	if !u.Roles.Contains(role) {
		return nil
	}
	if len(u.Roles) == 1 {
		return ErrLastRole
	}
	u.Roles = slices.DeleteFunc(u.Roles, func(r Role) bool { return r == role })

	return nil
}

// Deactivate flips the identity inactive. Already-inactive is a no-op.
func (u *Identity) Deactivate() {
	u.Active = false
}

// Activate flips the identity active again.
func (u *Identity) Activate() {
	u.Active = true
}
