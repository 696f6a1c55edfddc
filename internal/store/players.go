package store

import (
	"context"
	"fmt"

	"github.com/daicherr/orbis/internal/models"
)

func setPlayerID(p *models.Player, id int64) { p.ID = id }

func (q *Queries) CreatePlayer(ctx context.Context, p *models.Player) error {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO players (name, location, data, updated_at) VALUES (?, ?, '{}', ?)`,
		p.Name, p.Location, now())
	if err != nil {
		return fmt.Errorf("insert player: %w", asConflict(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return q.SavePlayer(ctx, p)
}

func (q *Queries) SavePlayer(ctx context.Context, p *models.Player) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	return affected(q.q.ExecContext(ctx,
		`UPDATE players SET name = ?, location = ?, data = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Location, data, now(), p.ID))
}

func (q *Queries) GetPlayer(ctx context.Context, id int64) (*models.Player, error) {
	row, err := q.getDoc(ctx, `SELECT id, data FROM players WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return decodeDoc(row, setPlayerID)
}

func (q *Queries) GetPlayerByName(ctx context.Context, name string) (*models.Player, error) {
	row, err := q.getDoc(ctx, `SELECT id, data FROM players WHERE name = ? ORDER BY id LIMIT 1`, name)
	if err != nil {
		return nil, err
	}
	return decodeDoc(row, setPlayerID)
}

func (q *Queries) ListPlayers(ctx context.Context) ([]*models.Player, error) {
	rows, err := q.selectDocs(ctx, `SELECT id, data FROM players ORDER BY id`)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Player, 0, len(rows))
	for _, r := range rows {
		p, err := decodeDoc(r, setPlayerID)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (q *Queries) PlayersAt(ctx context.Context, location string) ([]*models.Player, error) {
	rows, err := q.selectDocs(ctx, `SELECT id, data FROM players WHERE location = ? ORDER BY id`, location)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Player, 0, len(rows))
	for _, r := range rows {
		p, err := decodeDoc(r, setPlayerID)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
