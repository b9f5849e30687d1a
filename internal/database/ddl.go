package database

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/fmp-data/internal/model"
)

// seenColumn records the run that last wrote or confirmed a reference row.
const seenColumn = "last_seen_run"

var columnTypes = map[model.FieldKind]string{
	model.KindString:    "text",
	model.KindNumber:    "double precision",
	model.KindInteger:   "bigint",
	model.KindDecimal:   "numeric",
	model.KindBool:      "boolean",
	model.KindDate:      "date",
	model.KindTimestamp: "timestamptz",
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return out
}

// createTableSQL renders CREATE TABLE IF NOT EXISTS for et. byID resolves
// referenced entities to their table and key column.
func createTableSQL(et *model.EntityType, byID map[string]*model.EntityType) (string, error) {
	var cols []string
	for _, f := range et.Fields {
		typ, ok := columnTypes[f.Kind]
		if !ok {
			return "", fmt.Errorf("%s.%s: unsupported kind %s", et.ID, f.Name, f.Kind)
		}
		col := quote(f.Name) + " " + typ
		if f.Required || slices.Contains(et.Key, f.Name) {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	if !et.TimeSeries {
		cols = append(cols, quote(seenColumn)+" text")
	}

	cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoteAll(et.Key), ", ")))

	for _, ref := range et.References {
		parent, ok := byID[ref.Entity]
		if !ok {
			return "", fmt.Errorf("%s.%s references unknown entity %s", et.ID, ref.Column, ref.Entity)
		}
		if len(parent.Key) != 1 {
			return "", fmt.Errorf("%s.%s references %s, which has a composite key", et.ID, ref.Column, ref.Entity)
		}
		cols = append(cols, fmt.Sprintf(
			"CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			quote(et.TableName()+"_"+ref.Column+"_fkey"),
			quote(ref.Column),
			quote(parent.TableName()),
			quote(parent.Key[0]),
		))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quote(et.TableName()), strings.Join(cols, ",\n\t")), nil
}

// hypertableSQL converts a time-series table in place; existing rows are migrated.
func hypertableSQL(et *model.EntityType) string {
	return fmt.Sprintf(
		"SELECT create_hypertable('%s', '%s', if_not_exists => TRUE, migrate_data => TRUE)",
		strings.ReplaceAll(quote(et.TableName()), "'", "''"),
		strings.ReplaceAll(et.TimeField, "'", "''"),
	)
}

// upsertSQL writes one row. Rows identical to the stored one are left
// untouched, so RowsAffected is 0 for them.
func upsertSQL(et *model.EntityType) string {
	cols := make([]string, 0, len(et.Fields)+1)
	for _, f := range et.Fields {
		cols = append(cols, f.Name)
	}
	if !et.TimeSeries {
		cols = append(cols, seenColumn)
	}

	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	table := quote(et.TableName())
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		table, strings.Join(quoteAll(cols), ", "), strings.Join(params, ", "),
		strings.Join(quoteAll(et.Key), ", "))

	var data []string
	for _, f := range et.Fields {
		if !slices.Contains(et.Key, f.Name) {
			data = append(data, f.Name)
		}
	}
	if len(data) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}

	sets := make([]string, 0, len(data)+1)
	current := make([]string, len(data))
	excluded := make([]string, len(data))
	for i, c := range data {
		q := quote(c)
		sets = append(sets, q+" = EXCLUDED."+q)
		current[i] = table + "." + q
		excluded[i] = "EXCLUDED." + q
	}
	if !et.TimeSeries {
		q := quote(seenColumn)
		sets = append(sets, q+" = EXCLUDED."+q)
	}

	fmt.Fprintf(&b, " DO UPDATE SET %s WHERE (%s) IS DISTINCT FROM (%s)",
		strings.Join(sets, ", "), strings.Join(current, ", "), strings.Join(excluded, ", "))
	return b.String()
}

// markSeenSQL stamps an unchanged reference row with the current run:
// $1 is the run id, $2.. the key values.
func markSeenSQL(et *model.EntityType) string {
	conds := make([]string, len(et.Key))
	for i, k := range et.Key {
		conds[i] = fmt.Sprintf("%s = $%d", quote(k), i+2)
	}
	return fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s",
		quote(et.TableName()), quote(seenColumn), strings.Join(conds, " AND "))
}

// keysSQL selects the single-column key of et filtered by where, in byte
// order; the returned args are aligned with the placeholders.
func keysSQL(et *model.EntityType, where map[string][]string, limit int) (string, []any, error) {
	if len(et.Key) != 1 {
		return "", nil, fmt.Errorf("%s has a composite key", et.ID)
	}
	key := quote(et.Key[0])

	var conds []string
	var args []any
	for _, col := range slices.Sorted(maps.Keys(where)) {
		vals := where[col]
		if len(vals) == 0 {
			continue
		}
		if et.FieldIndex(col) < 0 {
			return "", nil, fmt.Errorf("%s has no column %s", et.ID, col)
		}
		args = append(args, vals)
		conds = append(conds, fmt.Sprintf("%s::text = ANY($%d)", quote(col), len(args)))
	}

	q := fmt.Sprintf("SELECT %s::text FROM %s", key, quote(et.TableName()))
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + key + "::text COLLATE \"C\""
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return q, args, nil
}
