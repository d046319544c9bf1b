package domain

import "time"

// Audit holds the who/when columns every content row carries.
type Audit struct {
	CreatedBy    string
	CreatedTime  time.Time
	ModifiedBy   string
	ModifiedTime time.Time
	DeletedBy    string
	DeletedTime  *time.Time
}

// NewAudit stamps a freshly created row.
func NewAudit(actor string, now time.Time) Audit {
	return Audit{
		CreatedBy:    actor,
		CreatedTime:  now,
		ModifiedBy:   actor,
		ModifiedTime: now,
	}
}

// Touch records a modification.
func (a Audit) Touch(actor string, now time.Time) Audit {
	a.ModifiedBy = actor
	a.ModifiedTime = now
	return a
}

// MarkDeleted records a soft delete.
func (a Audit) MarkDeleted(actor string, now time.Time) Audit {
	a = a.Touch(actor, now)
	a.DeletedBy = actor
	t := now
	a.DeletedTime = &t
	return a
}
