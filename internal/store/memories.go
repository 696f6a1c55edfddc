package store

import (
	"context"
	"sort"

	"github.com/daicherr/orbis/internal/embedding"
	"github.com/daicherr/orbis/internal/models"
)

type memoryRow struct {
	ID          int64   `db:"id"`
	Owner       string  `db:"owner"`
	Kind        string  `db:"kind"`
	Key         string  `db:"fact_key"`
	Content     string  `db:"content"`
	Importance  float64 `db:"importance"`
	Flagged     bool    `db:"flagged"`
	CreatedTurn int     `db:"created_turn"`
	Embedding   []byte  `db:"embedding"`
}

func (r memoryRow) record() *models.MemoryRecord {
	return &models.MemoryRecord{
		ID:          r.ID,
		Owner:       models.Ref(r.Owner),
		Kind:        r.Kind,
		Key:         r.Key,
		Content:     []byte(r.Content),
		Importance:  r.Importance,
		Flagged:     r.Flagged,
		CreatedTurn: r.CreatedTurn,
		Embedding:   decodeVector(r.Embedding),
	}
}

const memoryColumns = `id, owner, kind, fact_key, content, importance, flagged, created_turn, embedding`

// InsertMemory stores a record. Embeddings are fitted to the storage width.
func (q *Queries) InsertMemory(ctx context.Context, m *models.MemoryRecord) error {
	vec := m.Embedding
	if len(vec) > 0 {
		vec = embedding.Fit(vec, embedding.StorageWidth)
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO memories (owner, kind, fact_key, content, importance, flagged, created_turn, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.Owner), m.Kind, m.Key, string(m.Content), m.Importance, b2i(m.Flagged), m.CreatedTurn, encodeVector(vec))
	if err != nil {
		return asConflict(err)
	}
	m.ID, err = res.LastInsertId()
	m.Embedding = vec
	return err
}

func (q *Queries) UpdateMemory(ctx context.Context, m *models.MemoryRecord) error {
	vec := m.Embedding
	if len(vec) > 0 {
		vec = embedding.Fit(vec, embedding.StorageWidth)
	}
	return affected(q.q.ExecContext(ctx,
		`UPDATE memories SET content = ?, importance = ?, flagged = ?, embedding = ? WHERE id = ?`,
		string(m.Content), m.Importance, b2i(m.Flagged), encodeVector(vec), m.ID))
}

// MemoryByKey finds the record of an owner with a merge key, such as a
// semantic triple.
func (q *Queries) MemoryByKey(ctx context.Context, owner models.Ref, kind, key string) (*models.MemoryRecord, error) {
	var row memoryRow
	err := getContext(ctx, q, &row,
		`SELECT `+memoryColumns+` FROM memories WHERE owner = ? AND kind = ? AND fact_key = ?`,
		string(owner), kind, key)
	if err != nil {
		return nil, err
	}
	return row.record(), nil
}

// Memories lists an owner's records, newest first. Empty kind matches any
// kind; a non-empty pattern must appear in the content.
func (q *Queries) Memories(ctx context.Context, owner models.Ref, kind, pattern string, limit int) ([]*models.MemoryRecord, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE owner = ?`
	args := []any{string(owner)}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	if pattern != "" {
		query += ` AND content LIKE ?`
		args = append(args, "%"+pattern+"%")
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []memoryRow
	if err := selectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*models.MemoryRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

func (q *Queries) CountMemories(ctx context.Context, owner models.Ref, kind string) (int, error) {
	var n int
	err := getContext(ctx, q, &n, `SELECT COUNT(*) FROM memories WHERE owner = ? AND kind = ?`, string(owner), kind)
	return n, err
}

// ScoredMemory is a record with its similarity to a query.
type ScoredMemory struct {
	Record     *models.MemoryRecord
	Similarity float64
}

// SimilarMemories ranks an owner's records of a kind by cosine similarity to
// vec and returns the best k.
func (q *Queries) SimilarMemories(ctx context.Context, owner models.Ref, kind string, vec []float32, k int) ([]ScoredMemory, error) {
	records, err := q.Memories(ctx, owner, kind, "", 0)
	if err != nil {
		return nil, err
	}
	query := embedding.Fit(vec, embedding.StorageWidth)
	scored := make([]ScoredMemory, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) == 0 {
			continue
		}
		scored = append(scored, ScoredMemory{Record: r, Similarity: embedding.Cosine(query, r.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// FlagMemories marks records as eligible for consolidation.
func (q *Queries) FlagMemories(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlxIn(`UPDATE memories SET flagged = 1 WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, query, args...)
	return err
}
