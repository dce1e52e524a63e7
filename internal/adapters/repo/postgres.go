package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.ChatTurnRepo = (*Postgres)(nil)
var _ domain.WindowResultRepo = (*Postgres)(nil)
var _ domain.DayResultRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// SaveTurn сохраняет реплику диалога.
func (p *Postgres) SaveTurn(ctx context.Context, turn domain.ChatTurn) (domain.ChatTurn, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var delta, after sql.NullInt32
	if turn.ScoreDelta != nil {
		delta = sql.NullInt32{Int32: int32(*turn.ScoreDelta), Valid: true}
	}
	if turn.ScoreAfter != nil {
		after = sql.NullInt32{Int32: int32(*turn.ScoreAfter), Valid: true}
	}

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO chat_turns (user_id, role, text, score_delta, score_after, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`, turn.UserID, string(turn.Role), turn.Text, delta, after, turn.CreatedAt).Scan(&turn.ID)
	metrics.ObserveNetworkRequest("postgres", "chat_turns_insert", "chat_turns", start, err)
	if err != nil {
		return domain.ChatTurn{}, err
	}
	return turn, nil
}

// AttachScore прикрепляет оценку классификатора к пользовательской реплике.
func (p *Postgres) AttachScore(ctx context.Context, turnID int64, scoreDelta, scoreAfter int) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE chat_turns SET score_delta = $2, score_after = $3 WHERE id = $1
`, turnID, scoreDelta, scoreAfter)
	metrics.ObserveNetworkRequest("postgres", "chat_turns_score", "chat_turns", start, err)
	return err
}

// ListUserTurnsBetween возвращает реплики роли USER в интервале [start, end).
func (p *Postgres) ListUserTurnsBetween(ctx context.Context, userID int64, start, end time.Time) ([]domain.ChatTurn, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	begin := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, role, text, score_delta, score_after, created_at
FROM chat_turns
WHERE user_id = $1 AND role = 'USER' AND created_at >= $2 AND created_at < $3
ORDER BY created_at
`, userID, start, end)
	metrics.ObserveNetworkRequest("postgres", "chat_turns_list", "chat_turns", begin, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.ChatTurn
	for rows.Next() {
		var (
			turn  domain.ChatTurn
			role  string
			delta sql.NullInt32
			after sql.NullInt32
		)
		if err := rows.Scan(&turn.ID, &turn.UserID, &role, &turn.Text, &delta, &after, &turn.CreatedAt); err != nil {
			return nil, err
		}
		turn.Role = domain.TurnRole(role)
		if delta.Valid {
			v := int(delta.Int32)
			turn.ScoreDelta = &v
		}
		if after.Valid {
			v := int(after.Int32)
			turn.ScoreAfter = &v
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// CountUserTurnsBetween считает реплики роли USER в интервале [start, end).
func (p *Postgres) CountUserTurnsBetween(ctx context.Context, userID int64, start, end time.Time) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	begin := time.Now()
	var count int
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FROM chat_turns
WHERE user_id = $1 AND role = 'USER' AND created_at >= $2 AND created_at < $3
`, userID, start, end).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "chat_turns_count", "chat_turns", begin, err)
	return count, err
}

// ListActiveUserIDs возвращает пользователей с репликой любой роли в интервале.
func (p *Postgres) ListActiveUserIDs(ctx context.Context, start, end time.Time) ([]int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	begin := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT user_id FROM chat_turns
WHERE created_at >= $1 AND created_at < $2
ORDER BY user_id
`, start, end)
	metrics.ObserveNetworkRequest("postgres", "chat_turns_active", "chat_turns", begin, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInt64s(rows)
}

// SaveWindowResult сохраняет оконный агрегат.
func (p *Postgres) SaveWindowResult(ctx context.Context, result domain.WindowResult) (domain.WindowResult, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO window_results (user_id, window_label, avg_score, emotion_label, section, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`, result.UserID, result.WindowLabel, result.AvgScore, result.EmotionLabel, result.Section, result.CreatedAt).Scan(&result.ID)
	metrics.ObserveNetworkRequest("postgres", "window_results_insert", "window_results", start, err)
	if err != nil {
		return domain.WindowResult{}, err
	}
	return result, nil
}

// HasWindowResult сообщает, записан ли уже агрегат слота за день.
func (p *Postgres) HasWindowResult(ctx context.Context, userID int64, windowLabel string, dayStart, dayEnd time.Time) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	begin := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM window_results
  WHERE user_id = $1 AND window_label = $2 AND created_at >= $3 AND created_at < $4
)
`, userID, windowLabel, dayStart, dayEnd).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "window_results_exists", "window_results", begin, err)
	return exists, err
}

// LatestWindowResultBetween возвращает последний по времени агрегат интервала.
func (p *Postgres) LatestWindowResultBetween(ctx context.Context, userID int64, start, end time.Time) (domain.WindowResult, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	begin := time.Now()
	var result domain.WindowResult
	err := p.pool.QueryRow(ctx, `
SELECT id, user_id, window_label, avg_score, emotion_label, section, created_at
FROM window_results
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC
LIMIT 1
`, userID, start, end).Scan(&result.ID, &result.UserID, &result.WindowLabel, &result.AvgScore, &result.EmotionLabel, &result.Section, &result.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "window_results_latest", "window_results", begin, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WindowResult{}, false, nil
	}
	if err != nil {
		return domain.WindowResult{}, false, err
	}
	return result, true, nil
}

// ListWindowResultsBetween возвращает все агрегаты интервала в порядке записи.
func (p *Postgres) ListWindowResultsBetween(ctx context.Context, start, end time.Time) ([]domain.WindowResult, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	begin := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, window_label, avg_score, emotion_label, section, created_at
FROM window_results
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at
`, start, end)
	metrics.ObserveNetworkRequest("postgres", "window_results_list", "window_results", begin, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.WindowResult
	for rows.Next() {
		var result domain.WindowResult
		if err := rows.Scan(&result.ID, &result.UserID, &result.WindowLabel, &result.AvgScore, &result.EmotionLabel, &result.Section, &result.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// ListEmotionLabels возвращает метки эмоций пользователя в порядке записи.
func (p *Postgres) ListEmotionLabels(ctx context.Context, userID int64, start, end time.Time) ([]string, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	begin := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT emotion_label FROM window_results
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at
`, userID, start, end)
	metrics.ObserveNetworkRequest("postgres", "window_results_labels", "window_results", begin, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// ListUserIDsBetween возвращает пользователей, у которых есть агрегаты в интервале.
func (p *Postgres) ListUserIDsBetween(ctx context.Context, start, end time.Time) ([]int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	begin := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT user_id FROM window_results
WHERE created_at >= $1 AND created_at < $2
ORDER BY user_id
`, start, end)
	metrics.ObserveNetworkRequest("postgres", "window_results_users", "window_results", begin, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInt64s(rows)
}

// SaveDayResult сохраняет дневную свёртку.
func (p *Postgres) SaveDayResult(ctx context.Context, result domain.DayResult) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO day_results (user_id, date, avg_score, section)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, date) DO NOTHING
`, result.UserID, result.Date, result.AvgScore, result.Section)
	metrics.ObserveNetworkRequest("postgres", "day_results_insert", "day_results", start, err)
	return err
}

// HasDayResult сообщает, записана ли уже свёртка за дату.
func (p *Postgres) HasDayResult(ctx context.Context, userID int64, date time.Time) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	begin := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM day_results WHERE user_id = $1 AND date = $2)
`, userID, date).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "day_results_exists", "day_results", begin, err)
	return exists, err
}

// ListDayScoresBetween возвращает дневные оценки пользователя за интервал дат.
func (p *Postgres) ListDayScoresBetween(ctx context.Context, userID int64, start, end time.Time) ([]float64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	begin := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT avg_score FROM day_results
WHERE user_id = $1 AND date >= $2 AND date < $3
ORDER BY date
`, userID, start, end)
	metrics.ObserveNetworkRequest("postgres", "day_results_scores", "day_results", begin, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

func scanInt64s(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
