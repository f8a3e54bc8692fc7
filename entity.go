package mutation

import (
	"time"

	"github.com/google/uuid"
)

// Entity is the only requirement the pipeline places on persisted values.
type Entity interface {
	GetID() uuid.UUID
}

// Identity is an embeddable identifier.
type Identity struct {
	ID uuid.UUID `json:"id"`
}

func (i Identity) GetID() uuid.UUID { return i.ID }

// Auditable entities receive author and timestamp stamps from the pipeline.
type Auditable interface {
	StampCreated(at time.Time, by string)
	StampUpdated(at time.Time, by string)
}

// Audit is an embeddable implementation of Auditable. Deleted and archived
// are soft-state markers, the row is never removed because of them.
type Audit struct {
	CreatedAt  time.Time  `json:"created_at"`
	CreatedBy  string     `json:"created_by,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	UpdatedBy  string     `json:"updated_by,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	DeletedBy  string     `json:"deleted_by,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	ArchivedBy string     `json:"archived_by,omitempty"`
}

// StampCreated sets both the created and updated pairs.
func (a *Audit) StampCreated(at time.Time, by string) {
	a.CreatedAt = at
	a.CreatedBy = by
	a.StampUpdated(at, by)
}

// StampUpdated sets the updated pair only.
func (a *Audit) StampUpdated(at time.Time, by string) {
	a.UpdatedAt = &at
	a.UpdatedBy = by
}

func (a *Audit) MarkDeleted(at time.Time, by string) {
	a.DeletedAt = &at
	a.DeletedBy = by
}

func (a *Audit) MarkArchived(at time.Time, by string) {
	a.ArchivedAt = &at
	a.ArchivedBy = by
}

// Restore clears the deleted and archived markers.
func (a *Audit) Restore() {
	a.DeletedAt, a.DeletedBy = nil, ""
	a.ArchivedAt, a.ArchivedBy = nil, ""
}

func (a Audit) IsDeleted() bool  { return a.DeletedAt != nil }
func (a Audit) IsArchived() bool { return a.ArchivedAt != nil }
