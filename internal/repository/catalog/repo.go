// Package catalog is the read adapter over the host backend's item and member
// tables. It never writes outside Save* helpers used for seeding and tests.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kailas-cloud/tradematch/internal/domain"
	"github.com/kailas-cloud/tradematch/internal/domain/geo"
	"github.com/kailas-cloud/tradematch/internal/domain/item"
)

// Config selects the database and table names.
type Config struct {
	Driver       string
	DSN          string
	ItemsTable   string
	MembersTable string
	AutoMigrate  bool
	MaxOpenConns int
}

// Repo reads items and members via database/sql.
type Repo struct {
	db      *sql.DB
	dialect dialect
	items   string
	members string
}

// Open connects to the catalog database and optionally creates the tables.
func Open(ctx context.Context, cfg Config) (*Repo, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	r := newRepo(db, d, cfg.ItemsTable, cfg.MembersTable)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	if cfg.AutoMigrate {
		if err := r.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return r, nil
}

func newRepo(db *sql.DB, d dialect, itemsTable, membersTable string) *Repo {
	if itemsTable == "" {
		itemsTable = "items"
	}
	if membersTable == "" {
		membersTable = "members"
	}
	return &Repo{
		db:      db,
		dialect: d,
		items:   pq.QuoteIdentifier(itemsTable),
		members: pq.QuoteIdentifier(membersTable),
	}
}

// Migrate creates the catalog tables when they do not exist.
func (r *Repo) Migrate(ctx context.Context) error {
	f := r.dialect.floatCol
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + r.items + ` (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			category TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			lat ` + f + `,
			lon ` + f + `,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_owner ON ` + r.items + ` (owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_created ON ` + r.items + ` (created_at)`,
		`CREATE TABLE IF NOT EXISTS ` + r.members + ` (
			id TEXT PRIMARY KEY,
			preferred_categories TEXT NOT NULL DEFAULT '',
			lat ` + f + `,
			lon ` + f + `
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate catalog: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the connection pool.
func (r *Repo) Close() error {
	return r.db.Close()
}

const itemColumns = `id, owner_id, category, title, created_at, lat, lon, status`

// BrowseCandidates returns the tradable items a viewer may browse: not
// exchanged, not owned by the viewer, optionally one category and inside box.
// Ordered by created_at DESC, id ASC.
func (r *Repo) BrowseCandidates(
	ctx context.Context, viewerID, category string, box *geo.BoundingBox,
) ([]item.Item, error) {
	var where []string
	var args []any

	where = append(where, "status <> ?", "owner_id <> ?")
	args = append(args, string(item.StatusExchanged), viewerID)

	if category != "" {
		where = append(where, "category = ?")
		args = append(args, category)
	}
	if box != nil {
		where = append(where, "lat IS NOT NULL", "lon IS NOT NULL", "lat BETWEEN ? AND ?", "lon BETWEEN ? AND ?")
		args = append(args, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	}

	q := `SELECT ` + itemColumns + ` FROM ` + r.items +
		` WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id ASC`

	return r.queryItems(ctx, q, args...)
}

// TradableItemsOf returns the owner's items that are not exchanged,
// ordered by created_at DESC, id ASC.
func (r *Repo) TradableItemsOf(ctx context.Context, ownerID string) ([]item.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM ` + r.items +
		` WHERE owner_id = ? AND status <> ? ORDER BY created_at DESC, id ASC`
	return r.queryItems(ctx, q, ownerID, string(item.StatusExchanged))
}

// Item returns one item or domain.ErrItemNotFound.
func (r *Repo) Item(ctx context.Context, id string) (item.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM ` + r.items + ` WHERE id = ?`
	it, err := scanItem(r.db.QueryRowContext(ctx, r.dialect.rebind(q), id))
	if errors.Is(err, sql.ErrNoRows) {
		return item.Item{}, domain.ErrItemNotFound
	}
	if err != nil {
		return item.Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return it, nil
}

// Member returns one member or domain.ErrMemberNotFound.
func (r *Repo) Member(ctx context.Context, id string) (item.Member, error) {
	q := `SELECT id, preferred_categories, lat, lon FROM ` + r.members + ` WHERE id = ?`

	var m item.Member
	var cats string
	var lat, lon sql.NullFloat64
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(q), id).Scan(&m.ID, &cats, &lat, &lon)
	if errors.Is(err, sql.ErrNoRows) {
		return item.Member{}, domain.ErrMemberNotFound
	}
	if err != nil {
		return item.Member{}, fmt.Errorf("get member %s: %w", id, err)
	}

	m.PreferredCategories = splitCategories(cats)
	m.Location = toPoint(lat, lon)
	return m, nil
}

// SaveItem upserts an item.
func (r *Repo) SaveItem(ctx context.Context, it *item.Item) error {
	lat, lon := fromPoint(it.Location)
	q := `INSERT INTO ` + r.items + ` (` + itemColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET owner_id = excluded.owner_id, category = excluded.category,
		title = excluded.title, created_at = excluded.created_at, lat = excluded.lat,
		lon = excluded.lon, status = excluded.status`
	_, err := r.db.ExecContext(ctx, r.dialect.rebind(q),
		it.ID, it.OwnerID, it.Category, it.Title, it.CreatedAt.UnixMilli(), lat, lon, string(it.Status))
	if err != nil {
		return fmt.Errorf("save item %s: %w", it.ID, err)
	}
	return nil
}

// SaveMember upserts a member.
func (r *Repo) SaveMember(ctx context.Context, m *item.Member) error {
	lat, lon := fromPoint(m.Location)
	q := `INSERT INTO ` + r.members + ` (id, preferred_categories, lat, lon) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET preferred_categories = excluded.preferred_categories,
		lat = excluded.lat, lon = excluded.lon`
	_, err := r.db.ExecContext(ctx, r.dialect.rebind(q),
		m.ID, strings.Join(m.PreferredCategories, ","), lat, lon)
	if err != nil {
		return fmt.Errorf("save member %s: %w", m.ID, err)
	}
	return nil
}

func (r *Repo) queryItems(ctx context.Context, q string, args ...any) ([]item.Item, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (item.Item, error) {
	var it item.Item
	var createdAt int64
	var lat, lon sql.NullFloat64
	var status string

	if err := s.Scan(&it.ID, &it.OwnerID, &it.Category, &it.Title, &createdAt, &lat, &lon, &status); err != nil {
		return item.Item{}, err
	}

	st, err := item.ParseStatus(status)
	if err != nil {
		return item.Item{}, err
	}
	it.Status = st
	it.CreatedAt = time.UnixMilli(createdAt).UTC()
	it.Location = toPoint(lat, lon)
	return it, nil
}

func toPoint(lat, lon sql.NullFloat64) *geo.Point {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	p, err := geo.NewPoint(lat.Float64, lon.Float64)
	if err != nil {
		return nil
	}
	return &p
}

func fromPoint(p *geo.Point) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Lat, Valid: true}, sql.NullFloat64{Float64: p.Lon, Valid: true}
}

func splitCategories(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
