package store

import (
	"context"
	"fmt"

	"github.com/daicherr/orbis/internal/models"
)

func setQuestID(qu *models.Quest, id int64) { qu.ID = id }

func (q *Queries) CreateQuest(ctx context.Context, qu *models.Quest) error {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO quests (player_id, status, data) VALUES (?, ?, '{}')`, qu.PlayerID, qu.Status)
	if err != nil {
		return fmt.Errorf("insert quest: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	qu.ID = id
	return q.SaveQuest(ctx, qu)
}

func (q *Queries) SaveQuest(ctx context.Context, qu *models.Quest) error {
	data, err := encode(qu)
	if err != nil {
		return err
	}
	return affected(q.q.ExecContext(ctx,
		`UPDATE quests SET player_id = ?, status = ?, data = ? WHERE id = ?`,
		qu.PlayerID, qu.Status, data, qu.ID))
}

func (q *Queries) GetQuest(ctx context.Context, id int64) (*models.Quest, error) {
	row, err := q.getDoc(ctx, `SELECT id, data FROM quests WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return decodeDoc(row, setQuestID)
}

func (q *Queries) ActiveQuests(ctx context.Context, playerID int64) ([]*models.Quest, error) {
	return q.quests(ctx, `SELECT id, data FROM quests WHERE player_id = ? AND status = ? ORDER BY id`, playerID, models.QuestActive)
}

func (q *Queries) PlayerQuests(ctx context.Context, playerID int64) ([]*models.Quest, error) {
	return q.quests(ctx, `SELECT id, data FROM quests WHERE player_id = ? ORDER BY id`, playerID)
}

func (q *Queries) quests(ctx context.Context, query string, args ...any) ([]*models.Quest, error) {
	rows, err := q.selectDocs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Quest, 0, len(rows))
	for _, r := range rows {
		qu, err := decodeDoc(r, setQuestID)
		if err != nil {
			return nil, err
		}
		out = append(out, qu)
	}
	return out, nil
}
