package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Directory answers user lookups (role modules, push tokens) with plain pgx queries.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// LoadRoleModules returns the modules granted to the user's role.
func (d *Directory) LoadRoleModules(ctx context.Context, userID string) ([]string, error) {
	return d.strings(ctx, "load role modules", `
		SELECT rm.module_name
		FROM users u
		JOIN role_modules rm ON rm.role_id = u.role_id
		WHERE u.user_id = $1
		ORDER BY rm.module_name`, userID)
}

// RecipientTokens returns the push tokens a user registered.
func (d *Directory) RecipientTokens(ctx context.Context, userID string) ([]string, error) {
	return d.strings(ctx, "load recipient tokens", `
		SELECT token FROM fcm_tokens WHERE user_id = $1 ORDER BY token`, userID)
}

func (d *Directory) strings(ctx context.Context, op, query string, args ...interface{}) ([]string, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
