// Package accounts exposes the registered-user count. Registration itself
// lives with the storefront.
package accounts

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// Register inserts a user once per email; seeding and tests only.
func (r *Repo) Register(ctx context.Context, email string) error {
	_, err := r.DB.Exec(ctx,
		`INSERT INTO users(id, email) VALUES ($1, $2) ON CONFLICT (email) DO NOTHING`,
		uuid.NewString(), strings.ToLower(strings.TrimSpace(email)))
	return err
}

type Memory struct {
	mu     sync.Mutex
	emails map[string]struct{}
}

func NewMemory() *Memory { return &Memory{emails: map[string]struct{}{}} }

func (m *Memory) Register(_ context.Context, email string) error {
	m.mu.Lock()
	m.emails[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.emails), nil
}
