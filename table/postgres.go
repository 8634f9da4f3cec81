package table

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowforge/enginecore/engine"
)

// Postgres is a github.com/jackc/pgx/v5-backed engine.TableWriter. Each
// tableID maps directly to a Postgres table name; columns are expected to
// already exist (table provisioning is an external/admin concern, out of
// scope for the pipe writer itself ("optional table-registry
// contract validates... at flow registration").
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pgxpool.Pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) WriteRow(ctx context.Context, tableID string, row map[string]engine.Value) error {
	if len(row) == 0 {
		return fmt.Errorf("table: empty row for %q", tableID)
	}
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[c].ToAny()
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(tableID), strings.Join(quoteIdents(cols), ", "), strings.Join(placeholders, ", "))

	_, err := p.pool.Exec(ctx, query, args...)
	return err
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteIdents(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = quoteIdent(s)
	}
	return out
}
