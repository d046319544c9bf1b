package domain

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random 32-character hex identity.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
