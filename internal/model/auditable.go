package model

import "time"

// Auditable carries the identity and audit columns shared by every
// persisted entity.  It is embedded by value in Place, Reservation and
// User so that those structs expose Code, CreatedAt and the soft-delete
// flag directly.
//
// Fields:
//  Code          – opaque unique business code (RES-..., PLA-...).
//  CreatedAt     – creation timestamp.
//  LastUpdatedAt – timestamp of the last mutation.
//  IsDeleted     – soft-delete flag; rows are never physically removed.
//  DeletedAt     – when the row was soft-deleted (nil while active).
type Auditable struct {
	Code          string     `json:"code"`                // <table>.code
	CreatedAt     time.Time  `json:"createdAt"`           // <table>.created_at
	LastUpdatedAt time.Time  `json:"lastUpdatedAt"`       // <table>.last_updated_at
	IsDeleted     bool       `json:"isDeleted"`           // <table>.is_deleted
	DeletedAt     *time.Time `json:"deletedAt,omitempty"` // <table>.deleted_at (nullable)
}

// Active reports whether the record has not been soft-deleted.
func (a Auditable) Active() bool { return !a.IsDeleted }
