package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/daicherr/orbis/internal/models"
)

type locationRow struct {
	ID          int64  `db:"id"`
	Connections string `db:"connections"`
	Data        string `db:"data"`
}

func (r locationRow) decode() (*models.Location, error) {
	var l models.Location
	if err := json.Unmarshal([]byte(r.Data), &l); err != nil {
		return nil, fmt.Errorf("decode location %d: %w", r.ID, err)
	}
	l.ID = r.ID
	l.Connections = map[string]models.Connection{}
	if err := json.Unmarshal([]byte(r.Connections), &l.Connections); err != nil {
		return nil, fmt.Errorf("decode connections %d: %w", r.ID, err)
	}
	return &l, nil
}

// SaveLocation inserts or replaces a structured location by name. The
// connection map lives in its own column.
func (q *Queries) SaveLocation(ctx context.Context, l *models.Location) error {
	conns := l.Connections
	if conns == nil {
		conns = map[string]models.Connection{}
	}
	connData, err := encode(conns)
	if err != nil {
		return err
	}
	body := *l
	body.Connections = nil
	data, err := encode(body)
	if err != nil {
		return err
	}
	if _, err := q.q.ExecContext(ctx,
		`INSERT INTO locations (name, connections, data) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET connections = excluded.connections, data = excluded.data`,
		l.Name, connData, data); err != nil {
		return err
	}
	if l.ID == 0 {
		row, err := q.GetLocation(ctx, l.Name)
		if err != nil {
			return err
		}
		l.ID = row.ID
	}
	return nil
}

func (q *Queries) GetLocation(ctx context.Context, name string) (*models.Location, error) {
	var row locationRow
	err := getContext(ctx, q, &row, `SELECT id, connections, data FROM locations WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	return row.decode()
}

func (q *Queries) ListLocations(ctx context.Context) ([]*models.Location, error) {
	var rows []locationRow
	if err := selectContext(ctx, q, &rows, `SELECT id, connections, data FROM locations ORDER BY name`); err != nil {
		return nil, err
	}
	out := make([]*models.Location, 0, len(rows))
	for _, r := range rows {
		l, err := r.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func setDynamicID(d *models.DynamicLocation, id int64) { d.ID = id }

// CreateDynamicLocation stores a narratively created place. Its parent must
// be a known structured or dynamic location.
func (q *Queries) CreateDynamicLocation(ctx context.Context, d *models.DynamicLocation) error {
	if _, err := q.GetLocation(ctx, d.Parent); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if _, err := q.GetDynamicLocationByName(ctx, d.Parent); err != nil {
			return fmt.Errorf("parent %q of dynamic location: %w", d.Parent, err)
		}
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO dynamic_locations (name, owner_id, parent, data) VALUES (?, ?, ?, '{}')`,
		d.Name, d.OwnerID, d.Parent)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = id
	return q.SaveDynamicLocation(ctx, d)
}

func (q *Queries) SaveDynamicLocation(ctx context.Context, d *models.DynamicLocation) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	return affected(q.q.ExecContext(ctx,
		`UPDATE dynamic_locations SET name = ?, owner_id = ?, parent = ?, data = ? WHERE id = ?`,
		d.Name, d.OwnerID, d.Parent, data, d.ID))
}

func (q *Queries) GetDynamicLocation(ctx context.Context, id int64) (*models.DynamicLocation, error) {
	row, err := q.getDoc(ctx, `SELECT id, data FROM dynamic_locations WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return decodeDoc(row, setDynamicID)
}

func (q *Queries) GetDynamicLocationByName(ctx context.Context, name string) (*models.DynamicLocation, error) {
	row, err := q.getDoc(ctx, `SELECT id, data FROM dynamic_locations WHERE name = ? ORDER BY id LIMIT 1`, name)
	if err != nil {
		return nil, err
	}
	return decodeDoc(row, setDynamicID)
}

func (q *Queries) DynamicLocationsByOwner(ctx context.Context, ownerID int64) ([]*models.DynamicLocation, error) {
	return q.dynamics(ctx, `SELECT id, data FROM dynamic_locations WHERE owner_id = ? ORDER BY id`, ownerID)
}

func (q *Queries) DynamicLocationsByParent(ctx context.Context, parent string) ([]*models.DynamicLocation, error) {
	return q.dynamics(ctx, `SELECT id, data FROM dynamic_locations WHERE parent = ? ORDER BY id`, parent)
}

func (q *Queries) dynamics(ctx context.Context, query string, args ...any) ([]*models.DynamicLocation, error) {
	rows, err := q.selectDocs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*models.DynamicLocation, 0, len(rows))
	for _, r := range rows {
		d, err := decodeDoc(r, setDynamicID)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (q *Queries) SetAlias(ctx context.Context, a models.LocationAlias) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO location_aliases (player_id, alias, target) VALUES (?, ?, ?)
		 ON CONFLICT(player_id, alias) DO UPDATE SET target = excluded.target`,
		a.PlayerID, strings.ToLower(strings.TrimSpace(a.Alias)), a.Target)
	return err
}

func (q *Queries) ResolveAlias(ctx context.Context, playerID int64, alias string) (string, error) {
	var target string
	err := getContext(ctx, q, &target,
		`SELECT target FROM location_aliases WHERE player_id = ? AND alias = ?`,
		playerID, strings.ToLower(strings.TrimSpace(alias)))
	if err != nil {
		return "", err
	}
	return target, nil
}

func (q *Queries) Aliases(ctx context.Context, playerID int64) ([]models.LocationAlias, error) {
	var out []models.LocationAlias
	err := selectContext(ctx, q, &out,
		`SELECT player_id, alias, target FROM location_aliases WHERE player_id = ? ORDER BY alias`, playerID)
	return out, err
}
