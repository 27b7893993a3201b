// Package item holds the catalog records the engine reads but does not own.
package item

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/tradematch/internal/domain/geo"
)

// Status is the trade state of an item.
type Status string

// Trade states. Exchanged is terminal.
const (
	StatusAvailable Status = "AVAILABLE"
	StatusReserved  Status = "RESERVED"
	StatusExchanged Status = "EXCHANGED"
)

// ParseStatus validates a stored status value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusAvailable, StatusReserved, StatusExchanged:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown item status %q", s)
	}
}

// Terminal reports whether the item can no longer be traded.
func (s Status) Terminal() bool { return s == StatusExchanged }

// Item is a read-only catalog entry.
type Item struct {
	ID        string
	OwnerID   string
	Category  string
	Title     string
	CreatedAt time.Time
	Location  *geo.Point
	Status    Status
}

// Member is a read-only member profile.
type Member struct {
	ID                  string
	PreferredCategories []string
	Location            *geo.Point
}

// Prefers reports whether category is one of the member's explicit preferences.
func (m *Member) Prefers(category string) bool {
	for _, c := range m.PreferredCategories {
		if c == category {
			return true
		}
	}
	return false
}
