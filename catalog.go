package tradematch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/tradematch/internal/domain/geo"
	"github.com/kailas-cloud/tradematch/internal/domain/item"
)

// ItemStatus is the trade state of a catalog item.
type ItemStatus string

// Trade states. Exchanged items never appear in feeds or trade candidates.
const (
	ItemAvailable ItemStatus = "AVAILABLE"
	ItemReserved  ItemStatus = "RESERVED"
	ItemExchanged ItemStatus = "EXCHANGED"
)

// Location is a WGS84 coordinate in degrees.
type Location struct {
	Lat float64
	Lon float64
}

// Item is a catalog entry. Zero Status means available; zero CreatedAt means now.
type Item struct {
	ID        string
	OwnerID   string
	Category  string
	Title     string
	CreatedAt time.Time
	Location  *Location
	Status    ItemStatus
}

// Member is a member profile as the ranker sees it.
type Member struct {
	ID                  string
	PreferredCategories []string
	Location            *Location
}

// SaveItem upserts an item into the catalog. Hosts that own the catalog
// tables write there directly; this is for engines running with
// WithAutoMigrate.
func (c *Client) SaveItem(ctx context.Context, it Item) error {
	internal, err := c.toInternalItem(it)
	if err != nil {
		return err
	}
	if err := c.app.Catalog.SaveItem(ctx, &internal); err != nil {
		return fmt.Errorf("tradematch: %w", err)
	}
	return nil
}

// SaveMember upserts a member profile into the catalog.
func (c *Client) SaveMember(ctx context.Context, m Member) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: member id is required", ErrInvalidRequest)
	}
	loc, err := toInternalPoint(m.Location)
	if err != nil {
		return err
	}
	internal := item.Member{ID: m.ID, PreferredCategories: m.PreferredCategories, Location: loc}
	if err := c.app.Catalog.SaveMember(ctx, &internal); err != nil {
		return fmt.Errorf("tradematch: %w", err)
	}
	return nil
}

func (c *Client) toInternalItem(it Item) (item.Item, error) {
	if strings.TrimSpace(it.ID) == "" || strings.TrimSpace(it.OwnerID) == "" || it.Category == "" {
		return item.Item{}, fmt.Errorf("%w: item id, owner id and category are required", ErrInvalidRequest)
	}
	status := item.StatusAvailable
	if it.Status != "" {
		s, err := item.ParseStatus(string(it.Status))
		if err != nil {
			return item.Item{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		status = s
	}
	loc, err := toInternalPoint(it.Location)
	if err != nil {
		return item.Item{}, err
	}
	created := it.CreatedAt
	if created.IsZero() {
		created = c.now()
	}
	return item.Item{
		ID:        it.ID,
		OwnerID:   it.OwnerID,
		Category:  it.Category,
		Title:     it.Title,
		CreatedAt: created,
		Location:  loc,
		Status:    status,
	}, nil
}

func toInternalPoint(l *Location) (*geo.Point, error) {
	if l == nil {
		return nil, nil
	}
	p, err := geo.NewPoint(l.Lat, l.Lon)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return &p, nil
}
