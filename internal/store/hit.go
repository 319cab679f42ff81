package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Hit is a row of the hit log.
type Hit struct {
	ID        string
	Team      string
	Color     string
	X, Y      float64
	Score     float64
	Mass      uint32
	FrameTime int64
	CreatedAt time.Time
}

// HitRepository records and queries hits.
type HitRepository struct {
	db *sql.DB
}

// Hits returns the hit repository for this store.
func (s *Store) Hits() *HitRepository {
	return &HitRepository{db: s.db}
}

const hitColumns = `id, team, color, x, y, score, mass, frame_time_ms, created_at`

// Create inserts a hit. A zero CreatedAt is set to now.
func (r *HitRepository) Create(ctx context.Context, h *Hit) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO hits (`+hitColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Team, h.Color, h.X, h.Y, h.Score, h.Mass, h.FrameTime, h.CreatedAt.UTC(),
	)
	return err
}

// GetByID retrieves a hit by its ID.
func (r *HitRepository) GetByID(ctx context.Context, id string) (*Hit, error) {
	h := &Hit{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+hitColumns+` FROM hits WHERE id = ?`, id,
	).Scan(&h.ID, &h.Team, &h.Color, &h.X, &h.Y, &h.Score, &h.Mass, &h.FrameTime, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return h, nil
}

// List returns the most recent hits, newest first. A non-positive limit means 100.
func (r *HitRepository) List(ctx context.Context, limit int) ([]*Hit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+hitColumns+` FROM hits ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []*Hit
	for rows.Next() {
		h := &Hit{}
		if err := rows.Scan(&h.ID, &h.Team, &h.Color, &h.X, &h.Y, &h.Score, &h.Mass, &h.FrameTime, &h.CreatedAt); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

// CountByTeam returns the number of hits per team.
func (r *HitRepository) CountByTeam(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT team, COUNT(*) FROM hits GROUP BY team`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var team string
		var n int
		if err := rows.Scan(&team, &n); err != nil {
			return nil, err
		}
		counts[team] = n
	}
	return counts, rows.Err()
}

// DeleteAll clears the hit log and returns how many rows were removed.
func (r *HitRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM hits`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
