package store

import (
	"context"
	"fmt"

	"github.com/daicherr/orbis/internal/models"
)

func setNPCID(n *models.NPC, id int64) { n.ID = id }

func (q *Queries) CreateNPC(ctx context.Context, n *models.NPC) error {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO npcs (name, location, alive, data) VALUES (?, ?, ?, '{}')`,
		n.Name, n.Location, b2i(n.Alive))
	if err != nil {
		return fmt.Errorf("insert npc: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = id
	return q.SaveNPC(ctx, n)
}

func (q *Queries) SaveNPC(ctx context.Context, n *models.NPC) error {
	data, err := encode(n)
	if err != nil {
		return err
	}
	return affected(q.q.ExecContext(ctx,
		`UPDATE npcs SET name = ?, location = ?, alive = ?, data = ? WHERE id = ?`,
		n.Name, n.Location, b2i(n.Alive), data, n.ID))
}

func (q *Queries) GetNPC(ctx context.Context, id int64) (*models.NPC, error) {
	row, err := q.getDoc(ctx, `SELECT id, data FROM npcs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return decodeDoc(row, setNPCID)
}

func (q *Queries) GetNPCByName(ctx context.Context, name string) (*models.NPC, error) {
	row, err := q.getDoc(ctx, `SELECT id, data FROM npcs WHERE name = ? ORDER BY alive DESC, id LIMIT 1`, name)
	if err != nil {
		return nil, err
	}
	return decodeDoc(row, setNPCID)
}

// NPCsAt returns the living NPCs at a location.
func (q *Queries) NPCsAt(ctx context.Context, location string) ([]*models.NPC, error) {
	return q.npcs(ctx, `SELECT id, data FROM npcs WHERE location = ? AND alive = 1 ORDER BY id`, location)
}

func (q *Queries) ListNPCs(ctx context.Context) ([]*models.NPC, error) {
	return q.npcs(ctx, `SELECT id, data FROM npcs ORDER BY id`)
}

func (q *Queries) NPCsByIDs(ctx context.Context, ids []int64) ([]*models.NPC, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlxIn(`SELECT id, data FROM npcs WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	return q.npcs(ctx, query, args...)
}

func (q *Queries) npcs(ctx context.Context, query string, args ...any) ([]*models.NPC, error) {
	rows, err := q.selectDocs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*models.NPC, 0, len(rows))
	for _, r := range rows {
		n, err := decodeDoc(r, setNPCID)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
