package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/bidroom/go/internal/models"
	"github.com/mcdev12/bidroom/go/internal/sqlutil"
)

// PostgresSource reads the catalog tables.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Load(ctx context.Context) (*Catalog, error) {
	var c Catalog
	var err error

	if c.Teams, err = s.teams(ctx); err != nil {
		return nil, err
	}
	if c.Items, err = s.items(ctx); err != nil {
		return nil, err
	}
	if c.Modes, err = s.modes(ctx); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresSource) teams(ctx context.Context) ([]models.Team, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, short_name, color, logo_url
		FROM catalog_teams
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	teams, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Team, error) {
		var t models.Team
		err := row.Scan(&t.ID, &t.Name, &t.ShortName, &t.Color, &t.LogoURL)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan teams: %w", err)
	}
	return teams, nil
}

func (s *PostgresSource) items(ctx context.Context) ([]models.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, country, category, overseas, uncapped, base_price, set_name, stats, image_url
		FROM catalog_items
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Item, error) {
		var (
			it    models.Item
			stats []byte
		)
		if err := row.Scan(&it.ID, &it.Name, &it.Country, &it.Category, &it.Overseas, &it.Uncapped,
			&it.BasePrice, &it.Set, &stats, &it.ImageURL); err != nil {
			return it, err
		}
		if err := json.Unmarshal(stats, &it.Stats); err != nil {
			return it, fmt.Errorf("item %s stats: %w", it.ID, err)
		}
		return it, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan items: %w", err)
	}
	return items, nil
}

func (s *PostgresSource) modes(ctx context.Context) ([]Mode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, description, purse
		FROM catalog_modes
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list modes: %w", err)
	}
	modes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Mode, error) {
		var m Mode
		err := row.Scan(&m.Name, &m.Description, &m.Purse)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan modes: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT mode, team_id, purse FROM catalog_mode_purses`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mode purses: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int, len(modes))
	for i, m := range modes {
		index[m.Name] = i
	}
	for rows.Next() {
		var (
			mode, team string
			purse      int64
		)
		if err := rows.Scan(&mode, &team, &purse); err != nil {
			return nil, fmt.Errorf("failed to scan mode purse: %w", err)
		}
		i, ok := index[mode]
		if !ok {
			continue
		}
		if modes[i].Purses == nil {
			modes[i].Purses = make(map[string]int64)
		}
		modes[i].Purses[team] = purse
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mode purses: %w", err)
	}
	return modes, nil
}

// SaveResult counts what Save wrote.
type SaveResult struct {
	Teams int
	Items int
	Modes int
}

// Save upserts c into the catalog tables in a single transaction. Mode purse
// overrides are replaced wholesale.
func (s *PostgresSource) Save(ctx context.Context, c *Catalog) (SaveResult, error) {
	if err := c.Validate(); err != nil {
		return SaveResult{}, err
	}

	var res SaveResult
	err := sqlutil.Run(ctx, s.pool, func(tx pgx.Tx) error {
		for i, t := range c.Teams {
			_, err := tx.Exec(ctx, `
				INSERT INTO catalog_teams (id, name, short_name, color, logo_url, position)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET
				  name = EXCLUDED.name, short_name = EXCLUDED.short_name, color = EXCLUDED.color,
				  logo_url = EXCLUDED.logo_url, position = EXCLUDED.position`,
				t.ID, t.Name, t.ShortName, t.Color, t.LogoURL, i)
			if err != nil {
				return fmt.Errorf("error upserting team %s: %w", t.ID, err)
			}
			res.Teams++
		}

		batch := &pgx.Batch{}
		for i, it := range c.Items {
			stats, err := json.Marshal(it.Stats)
			if err != nil {
				return fmt.Errorf("item %s stats: %w", it.ID, err)
			}
			batch.Queue(`
				INSERT INTO catalog_items (id, name, country, category, overseas, uncapped, base_price, set_name, stats, image_url, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (id) DO UPDATE SET
				  name = EXCLUDED.name, country = EXCLUDED.country, category = EXCLUDED.category,
				  overseas = EXCLUDED.overseas, uncapped = EXCLUDED.uncapped, base_price = EXCLUDED.base_price,
				  set_name = EXCLUDED.set_name, stats = EXCLUDED.stats, image_url = EXCLUDED.image_url,
				  position = EXCLUDED.position`,
				it.ID, it.Name, it.Country, string(it.Category), it.Overseas, it.Uncapped,
				it.BasePrice, it.Set, stats, it.ImageURL, i)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("error upserting items: %w", err)
		}
		res.Items = len(c.Items)

		for i, m := range c.Modes {
			_, err := tx.Exec(ctx, `
				INSERT INTO catalog_modes (name, description, purse, position)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (name) DO UPDATE SET
				  description = EXCLUDED.description, purse = EXCLUDED.purse, position = EXCLUDED.position`,
				m.Name, m.Description, m.Purse, i)
			if err != nil {
				return fmt.Errorf("error upserting mode %s: %w", m.Name, err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM catalog_mode_purses WHERE mode = $1`, m.Name); err != nil {
				return fmt.Errorf("error clearing purses of mode %s: %w", m.Name, err)
			}
			for team, purse := range m.Purses {
				_, err := tx.Exec(ctx,
					`INSERT INTO catalog_mode_purses (mode, team_id, purse) VALUES ($1, $2, $3)`,
					m.Name, team, purse)
				if err != nil {
					return fmt.Errorf("error inserting purse %s/%s: %w", m.Name, team, err)
				}
			}
			res.Modes++
		}
		return nil
	})
	if err != nil {
		return SaveResult{}, err
	}
	return res, nil
}
