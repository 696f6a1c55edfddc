package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/daicherr/orbis/internal/models"
)

type logRow struct {
	ID        int64  `db:"id"`
	Data      string `db:"data"`
	Embedding []byte `db:"embedding"`
}

func (r logRow) decode() (*models.GameLog, error) {
	var l models.GameLog
	if err := json.Unmarshal([]byte(r.Data), &l); err != nil {
		return nil, fmt.Errorf("decode log %d: %w", r.ID, err)
	}
	l.ID = r.ID
	l.Embedding = decodeVector(r.Embedding)
	return &l, nil
}

// NextTurn returns the next dense turn number for a player, starting at 0.
func (q *Queries) NextTurn(ctx context.Context, playerID int64) (int, error) {
	var n int
	err := getContext(ctx, q, &n, `SELECT COUNT(*) FROM game_logs WHERE player_id = ?`, playerID)
	return n, err
}

// AppendLog writes a turn record. The turn number must be the next dense
// value for the player; anything else is ErrConflict.
func (q *Queries) AppendLog(ctx context.Context, l *models.GameLog) error {
	next, err := q.NextTurn(ctx, l.PlayerID)
	if err != nil {
		return err
	}
	if l.Turn != next {
		return fmt.Errorf("%w: turn %d for player %d, expected %d", ErrConflict, l.Turn, l.PlayerID, next)
	}
	data, err := encode(l)
	if err != nil {
		return err
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO game_logs (player_id, turn_number, data, embedding) VALUES (?, ?, ?, ?)`,
		l.PlayerID, l.Turn, data, encodeVector(l.Embedding))
	if err != nil {
		return asConflict(err)
	}
	l.ID, err = res.LastInsertId()
	return err
}

// RecentLogs returns up to limit logs for a player, oldest first.
func (q *Queries) RecentLogs(ctx context.Context, playerID int64, limit int) ([]*models.GameLog, error) {
	var rows []logRow
	err := selectContext(ctx, q, &rows,
		`SELECT id, data, embedding FROM (
		   SELECT id, data, embedding, turn_number FROM game_logs
		   WHERE player_id = ? ORDER BY turn_number DESC LIMIT ?
		 ) ORDER BY turn_number ASC`, playerID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.GameLog, 0, len(rows))
	for _, r := range rows {
		l, err := r.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// LastLog returns the most recent log of a player.
func (q *Queries) LastLog(ctx context.Context, playerID int64) (*models.GameLog, error) {
	logs, err := q.RecentLogs(ctx, playerID, 1)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, ErrNotFound
	}
	return logs[0], nil
}

func (q *Queries) LogTurns(ctx context.Context, playerID int64) ([]int, error) {
	var turns []int
	err := selectContext(ctx, q, &turns,
		`SELECT turn_number FROM game_logs WHERE player_id = ? ORDER BY turn_number`, playerID)
	return turns, err
}
