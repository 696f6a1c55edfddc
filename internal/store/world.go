package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/daicherr/orbis/internal/models"
)

func setEventID(e *models.WorldEvent, id int64) { e.ID = id }

func (q *Queries) CreateEvent(ctx context.Context, e *models.WorldEvent) error {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO world_events (event_type, turn, location, active, data) VALUES (?, ?, ?, ?, '{}')`,
		e.Type, e.Turn, e.Location, b2i(e.Active))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return q.SaveEvent(ctx, e)
}

func (q *Queries) SaveEvent(ctx context.Context, e *models.WorldEvent) error {
	data, err := encode(e)
	if err != nil {
		return err
	}
	return affected(q.q.ExecContext(ctx,
		`UPDATE world_events SET event_type = ?, turn = ?, location = ?, active = ?, data = ? WHERE id = ?`,
		e.Type, e.Turn, e.Location, b2i(e.Active), data, e.ID))
}

func (q *Queries) GetEvent(ctx context.Context, id int64) (*models.WorldEvent, error) {
	row, err := q.getDoc(ctx, `SELECT id, data FROM world_events WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return decodeDoc(row, setEventID)
}

// RecentEvents returns events since a turn, newest first. A negative since
// returns the latest events regardless of turn.
func (q *Queries) RecentEvents(ctx context.Context, since, limit int) ([]*models.WorldEvent, error) {
	return q.events(ctx, `SELECT id, data FROM world_events WHERE turn >= ? ORDER BY turn DESC, id DESC LIMIT ?`, since, limit)
}

func (q *Queries) EventsAt(ctx context.Context, location string, since, limit int) ([]*models.WorldEvent, error) {
	return q.events(ctx, `SELECT id, data FROM world_events WHERE location = ? AND turn >= ? ORDER BY turn DESC, id DESC LIMIT ?`,
		location, since, limit)
}

func (q *Queries) events(ctx context.Context, query string, args ...any) ([]*models.WorldEvent, error) {
	rows, err := q.selectDocs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*models.WorldEvent, 0, len(rows))
	for _, r := range rows {
		e, err := decodeDoc(r, setEventID)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (q *Queries) SaveFaction(ctx context.Context, f *models.Faction) error {
	data, err := encode(f)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx,
		`INSERT INTO factions (name, data) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET data = excluded.data`,
		f.Name, data)
	return err
}

func (q *Queries) ListFactions(ctx context.Context) ([]*models.Faction, error) {
	var rows []string
	if err := selectContext(ctx, q, &rows, `SELECT data FROM factions ORDER BY name`); err != nil {
		return nil, err
	}
	out := make([]*models.Faction, 0, len(rows))
	for _, data := range rows {
		var f models.Faction
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return nil, fmt.Errorf("decode faction: %w", err)
		}
		out = append(out, &f)
	}
	return out, nil
}

func (q *Queries) SaveEconomyItem(ctx context.Context, e *models.EconomyItem) error {
	_, err := namedExec(ctx, q, `INSERT INTO economy (name, category, base_price, current_price, supply, demand)
		VALUES (:name, :category, :base_price, :current_price, :supply, :demand)
		ON CONFLICT(name) DO UPDATE SET category = excluded.category, base_price = excluded.base_price,
		  current_price = excluded.current_price, supply = excluded.supply, demand = excluded.demand`, e)
	return err
}

func (q *Queries) GetEconomyItem(ctx context.Context, name string) (*models.EconomyItem, error) {
	var e models.EconomyItem
	if err := getContext(ctx, q, &e, `SELECT name, category, base_price, current_price, supply, demand FROM economy WHERE name = ?`, name); err != nil {
		return nil, err
	}
	return &e, nil
}

func (q *Queries) ListEconomy(ctx context.Context) ([]*models.EconomyItem, error) {
	var out []*models.EconomyItem
	err := selectContext(ctx, q, &out, `SELECT name, category, base_price, current_price, supply, demand FROM economy ORDER BY name`)
	return out, err
}

func (q *Queries) SaveEcology(ctx context.Context, r *models.RegionEcology) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx,
		`INSERT INTO ecology (region, data) VALUES (?, ?) ON CONFLICT(region) DO UPDATE SET data = excluded.data`,
		r.Region, data)
	return err
}

func (q *Queries) ListEcology(ctx context.Context) ([]*models.RegionEcology, error) {
	var rows []string
	if err := selectContext(ctx, q, &rows, `SELECT data FROM ecology ORDER BY region`); err != nil {
		return nil, err
	}
	out := make([]*models.RegionEcology, 0, len(rows))
	for _, data := range rows {
		var r models.RegionEcology
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode ecology: %w", err)
		}
		out = append(out, &r)
	}
	return out, nil
}

// SaveSession stores a serialized session context for a player.
func (q *Queries) SaveSession(ctx context.Context, playerID int64, data []byte) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO session_snapshots (player_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(player_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		playerID, string(data), now())
	return err
}

func (q *Queries) LoadSession(ctx context.Context, playerID int64) ([]byte, error) {
	var data string
	if err := getContext(ctx, q, &data, `SELECT data FROM session_snapshots WHERE player_id = ?`, playerID); err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// SaveWorldSnapshot stores the oracle snapshot unless a newer version is
// already stored.
func (q *Queries) SaveWorldSnapshot(ctx context.Context, version uint64, data []byte) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO world_snapshot (id, version, data, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version, data = excluded.data, updated_at = excluded.updated_at
		 WHERE excluded.version >= world_snapshot.version`,
		int64(version), string(data), now())
	return err
}

func (q *Queries) LoadWorldSnapshot(ctx context.Context) (uint64, []byte, error) {
	var row struct {
		Version int64  `db:"version"`
		Data    string `db:"data"`
	}
	if err := getContext(ctx, q, &row, `SELECT version, data FROM world_snapshot WHERE id = 1`); err != nil {
		return 0, nil, err
	}
	return uint64(row.Version), []byte(row.Data), nil
}

// RecordTick marks a simulation tick as applied. It reports false when the
// turn was already recorded.
func (q *Queries) RecordTick(ctx context.Context, turn int, summary string) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO simulation_ticks (turn, summary, applied_at) VALUES (?, ?, ?)`,
		turn, summary, now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (q *Queries) TickSummary(ctx context.Context, turn int) (string, error) {
	var s string
	err := getContext(ctx, q, &s, `SELECT summary FROM simulation_ticks WHERE turn = ?`, turn)
	return s, err
}

// LastTickTurn returns the highest simulated turn, or 0 before the first tick.
func (q *Queries) LastTickTurn(ctx context.Context) (int, error) {
	var turn int
	err := getContext(ctx, q, &turn, `SELECT COALESCE(MAX(turn), 0) FROM simulation_ticks`)
	return turn, err
}
