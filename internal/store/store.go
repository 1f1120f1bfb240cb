// Package store is the Postgres persistence layer: delivery records, the
// local user cache, and project ownership lookups.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx pool with the queries the dispatch engine, resolver and
// API need.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// User is a row in the local user cache, synced from the identity provider.
type User struct {
	ID        string
	Email     string
	Name      string
	Phone     string
	Roles     []string
	LastSync  time.Time
	CreatedAt time.Time
}

// Stale reports whether the cached row is older than the given TTL as of
// the given reference time.
func (u *User) Stale(now time.Time, ttl time.Duration) bool {
	return u.LastSync.Before(now.Add(-ttl))
}

// Owner identifies the owning user of a project entity.
type Owner struct {
	UserID string
	Email  string
	Name   string
}

// FindUser looks up one cached user by id. Returns (nil, nil) when absent.
func (s *Store) FindUser(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `
		SELECT id, email, COALESCE(name,''), COALESCE(phone,''), COALESCE(roles,'[]'::jsonb), last_sync, created_at
		FROM notify.users_cache
		WHERE id = $1`, id))
}

// FindUserByEmail looks up one cached user by email. Returns (nil, nil) when absent.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `
		SELECT id, email, COALESCE(name,''), COALESCE(phone,''), COALESCE(roles,'[]'::jsonb), last_sync, created_at
		FROM notify.users_cache
		WHERE email = $1`, email))
}

func (s *Store) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Roles, &u.LastSync, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindAdmins returns all cached users holding the admin role.
func (s *Store) FindAdmins(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, COALESCE(name,''), COALESCE(phone,''), COALESCE(roles,'[]'::jsonb), last_sync, created_at
		FROM notify.users_cache
		WHERE roles @> '["admin"]'::jsonb`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Roles, &u.LastSync, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SaveUser inserts or refreshes a cached user row.
func (s *Store) SaveUser(ctx context.Context, u *User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notify.users_cache(id, email, name, phone, roles, last_sync, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
		    name = EXCLUDED.name,
		    phone = EXCLUDED.phone,
		    roles = EXCLUDED.roles,
		    last_sync = EXCLUDED.last_sync`,
		u.ID, u.Email, u.Name, u.Phone, u.Roles, u.LastSync, u.CreatedAt)
	return err
}

// FindOwner returns the owner of a project entity, or (nil, nil) when the
// project does not exist.
func (s *Store) FindOwner(ctx context.Context, entityID string) (*Owner, error) {
	var o Owner
	err := s.pool.QueryRow(ctx, `
		SELECT owner_id, owner_email, COALESCE(owner_name,'')
		FROM notify.projects
		WHERE id = $1`, entityID).Scan(&o.UserID, &o.Email, &o.Name)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
