package supabase

import (
	"context"
	"encoding/json"
	"fmt"

	"memo-web/internal/remote"
	appErrors "memo-web/pkg/errors"

	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

// Tables runs PostgREST queries with the client's current token, so row
// level security scopes every result to the signed-in user.
type Tables struct {
	conn    *conn
	breaker *Breaker
}

var _ remote.Tables = (*Tables)(nil)

func applyFilters(fb *postgrest.FilterBuilder, filters []remote.Filter) *postgrest.FilterBuilder {
	for _, f := range filters {
		fb = fb.Eq(f.Column, f.Value)
	}
	return fb
}

func (t *Tables) run(ctx context.Context, table string, fn func(sb *supa.Client) error) error {
	if err := ctx.Err(); err != nil {
		return appErrors.NewUnexpected(err)
	}
	return t.breaker.Do(func() error {
		return t.conn.do(fn)
	})
}

// Select decodes all matching rows into dest.
func (t *Tables) Select(ctx context.Context, table string, filters []remote.Filter, order *remote.Order, dest any) error {
	return t.run(ctx, table, func(sb *supa.Client) error {
		fb := applyFilters(sb.From(table).Select("*", "", false), filters)
		if order != nil {
			fb = fb.Order(order.Column, &postgrest.OrderOpts{Ascending: order.Ascending})
		}
		_, err := fb.ExecuteTo(dest)
		return mapRestError(table, err)
	})
}

// Insert writes row and decodes the stored representation into dest.
func (t *Tables) Insert(ctx context.Context, table string, row any, dest any) error {
	return t.run(ctx, table, func(sb *supa.Client) error {
		body, _, err := sb.From(table).Insert(row, false, "", "representation", "").Execute()
		if err != nil {
			return mapRestError(table, err)
		}
		_, err = decodeFirst(body, dest)
		return err
	})
}

// Update patches matching rows. No match is a not found error.
func (t *Tables) Update(ctx context.Context, table string, patch any, filters []remote.Filter, dest any) error {
	return t.run(ctx, table, func(sb *supa.Client) error {
		body, _, err := applyFilters(sb.From(table).Update(patch, "representation", ""), filters).Execute()
		if err != nil {
			return mapRestError(table, err)
		}
		n, err := decodeFirst(body, dest)
		if err != nil {
			return err
		}
		if n == 0 {
			return appErrors.NewNotFound("No matching row")
		}
		return nil
	})
}

// Delete removes matching rows and reports how many went.
func (t *Tables) Delete(ctx context.Context, table string, filters []remote.Filter) (int, error) {
	var n int
	err := t.run(ctx, table, func(sb *supa.Client) error {
		body, _, err := applyFilters(sb.From(table).Delete("representation", ""), filters).Execute()
		if err != nil {
			return mapRestError(table, err)
		}
		n, err = decodeFirst(body, nil)
		return err
	})
	return n, err
}

// decodeFirst decodes the first element of a JSON array into dest and
// returns the array length.
func decodeFirst(body []byte, dest any) (int, error) {
	if len(body) == 0 {
		return 0, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, appErrors.NewUnexpected(fmt.Errorf("decode rows: %w", err))
	}
	if len(rows) == 0 || dest == nil {
		return len(rows), nil
	}
	if err := json.Unmarshal(rows[0], dest); err != nil {
		return 0, appErrors.NewUnexpected(fmt.Errorf("decode row: %w", err))
	}
	return len(rows), nil
}
