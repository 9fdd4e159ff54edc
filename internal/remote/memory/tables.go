package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"memo-web/internal/remote"
	appErrors "memo-web/pkg/errors"

	"github.com/google/uuid"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// ownerColumn names the column that row level policies check.
const ownerColumn = "user_id"

// ownedTables are only visible to the user in their owner column.
var ownedTables = map[string]bool{
	remote.TableCategories: true,
	remote.TableMemos:      true,
}

// foreignKeys lists column references that inserts and updates must honour.
var foreignKeys = map[string]map[string]string{
	remote.TableMemos: {"category_id": remote.TableCategories},
}

// Tables is row access for one client, scoped to its signed-in user.
type Tables struct {
	backend *Backend
	auth    *Auth
}

var _ remote.Tables = (*Tables)(nil)

// Select decodes all visible rows matching filters into dest.
func (t *Tables) Select(ctx context.Context, table string, filters []remote.Filter, order *remote.Order, dest any) error {
	uid := t.auth.userID(ctx)
	b := t.backend
	b.mu.Lock()
	if err := b.begin(ctx, "Select", table); err != nil {
		b.mu.Unlock()
		return err
	}
	var rows []map[string]any
	for _, row := range b.tables[table] {
		if visible(table, row, uid) && matches(row, filters) {
			rows = append(rows, copyRow(row))
		}
	}
	b.mu.Unlock()

	if order != nil {
		if !order.Ascending {
			// later rows first on ties
			slices.Reverse(rows)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			a, c := fmt.Sprint(rows[i][order.Column]), fmt.Sprint(rows[j][order.Column])
			if order.Ascending {
				return a < c
			}
			return a > c
		})
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return decode(rows, dest)
}

// Insert stores row, filling in id and timestamps, and decodes the stored
// row into dest.
func (t *Tables) Insert(ctx context.Context, table string, row any, dest any) error {
	uid := t.auth.userID(ctx)
	values, err := toMap(row)
	if err != nil {
		return err
	}

	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(ctx, "Insert", table); err != nil {
		return err
	}
	if ownedTables[table] && (uid == "" || values[ownerColumn] != uid) {
		return rlsViolation(table)
	}
	if err := b.checkForeignKeys(table, values); err != nil {
		return err
	}

	now := b.now().UTC().Format(timestampLayout)
	if _, ok := values["id"]; !ok {
		values["id"] = uuid.NewString()
	}
	for _, existing := range b.tables[table] {
		if existing["id"] == values["id"] {
			return appErrors.NewRemote(fmt.Sprintf("duplicate key value violates unique constraint \"%s_pkey\"", table), nil)
		}
	}
	if _, ok := values["created_at"]; !ok {
		values["created_at"] = now
	}
	if table == remote.TableMemos {
		values["updated_at"] = now
	}
	b.tables[table] = append(b.tables[table], values)

	if dest == nil {
		return nil
	}
	return decode(values, dest)
}

// Update applies patch to every visible row matching filters.
func (t *Tables) Update(ctx context.Context, table string, patch any, filters []remote.Filter, dest any) error {
	uid := t.auth.userID(ctx)
	values, err := toMap(patch)
	if err != nil {
		return err
	}

	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(ctx, "Update", table); err != nil {
		return err
	}
	if err := b.checkForeignKeys(table, values); err != nil {
		return err
	}

	var first map[string]any
	for _, row := range b.tables[table] {
		if !visible(table, row, uid) || !matches(row, filters) {
			continue
		}
		for k, v := range values {
			row[k] = v
		}
		if _, ok := row["updated_at"]; ok {
			row["updated_at"] = b.now().UTC().Format(timestampLayout)
		}
		if first == nil {
			first = copyRow(row)
		}
	}
	if first == nil {
		return appErrors.NewNotFound("No matching row")
	}
	if dest == nil {
		return nil
	}
	return decode(first, dest)
}

// Delete removes every visible row matching filters.
func (t *Tables) Delete(ctx context.Context, table string, filters []remote.Filter) (int, error) {
	uid := t.auth.userID(ctx)
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(ctx, "Delete", table); err != nil {
		return 0, err
	}

	kept := b.tables[table][:0]
	removed := 0
	for _, row := range b.tables[table] {
		if visible(table, row, uid) && matches(row, filters) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	b.tables[table] = kept
	return removed, nil
}

// checkForeignKeys verifies referenced rows exist. The caller must hold
// b.mu.
func (b *Backend) checkForeignKeys(table string, values map[string]any) error {
	for column, target := range foreignKeys[table] {
		ref, ok := values[column]
		if !ok || ref == nil {
			continue
		}
		found := false
		for _, row := range b.tables[target] {
			if row["id"] == ref {
				found = true
				break
			}
		}
		if !found {
			return appErrors.NewRemote(fmt.Sprintf(
				"insert or update on table \"%s\" violates foreign key constraint \"%s_%s_fkey\"", table, table, column), nil)
		}
	}
	return nil
}

func visible(table string, row map[string]any, uid string) bool {
	if !ownedTables[table] {
		return true
	}
	return uid != "" && row[ownerColumn] == uid
}

func matches(row map[string]any, filters []remote.Filter) bool {
	for _, f := range filters {
		v, ok := row[f.Column]
		if !ok || v == nil || fmt.Sprint(v) != f.Value {
			return false
		}
	}
	return true
}

func rlsViolation(table string) error {
	return appErrors.NewRemote(fmt.Sprintf("new row violates row-level security policy for table \"%s\"", table), nil)
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, appErrors.NewUnexpected(fmt.Errorf("encode row: %w", err))
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, appErrors.NewUnexpected(fmt.Errorf("row must be an object: %w", err))
	}
	return out, nil
}

func decode(v any, dest any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return appErrors.NewUnexpected(fmt.Errorf("encode result: %w", err))
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return appErrors.NewUnexpected(fmt.Errorf("decode result: %w", err))
	}
	return nil
}
