package database

import (
	"context"
	"fmt"

	"github.com/rickgao/fmp-data/internal/model"
	"github.com/rickgao/fmp-data/internal/storage"
)

var _ storage.Reporter = (*Gateway)(nil)

// TableReport returns row counts and on-disk size of each entity table
// that exists. Hypertable sizes include all chunks.
func (g *Gateway) TableReport(ctx context.Context, entities []*model.EntityType) ([]storage.TableStats, error) {
	timescale, err := g.hasTimescale(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]storage.TableStats, 0, len(entities))
	for _, et := range entities {
		table := et.TableName()

		var exists bool
		if err := g.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, quote(table)).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check table %s: %w", table, classify(et.ID, err))
		}
		if !exists {
			continue
		}

		st := storage.TableStats{Entity: et.ID, Table: table}
		if timescale {
			err := g.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM timescaledb_information.hypertables WHERE hypertable_name = $1)`,
				table,
			).Scan(&st.Hypertable)
			if err != nil {
				return nil, fmt.Errorf("check hypertable %s: %w", table, classify(et.ID, err))
			}
		}

		if err := g.pool.QueryRow(ctx, "SELECT count(*) FROM "+quote(table)).Scan(&st.Rows); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, classify(et.ID, err))
		}

		sizeSQL := `SELECT pg_total_relation_size($1::regclass)`
		if st.Hypertable {
			sizeSQL = `SELECT hypertable_size($1::regclass)`
		}
		if err := g.pool.QueryRow(ctx, sizeSQL, quote(table)).Scan(&st.SizeBytes); err != nil {
			return nil, fmt.Errorf("size of %s: %w", table, classify(et.ID, err))
		}

		out = append(out, st)
	}
	return out, nil
}
