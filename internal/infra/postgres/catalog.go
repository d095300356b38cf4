package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-engine-service/internal/domain"
)

const questionColumns = `id, topic_id, category, subject, text, options, correct_answer, difficulty, points, active, usage_count, explanation`

// Catalog stores topics and questions in Postgres. topics.total_questions is
// recomputed in the same transaction as every question write.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) FindTopic(ctx context.Context, topicID string) (domain.Topic, error) {
	var t domain.Topic
	err := c.pool.QueryRow(ctx,
		`SELECT id, subject, category, name, difficulty, total_questions FROM topics WHERE id=$1`, topicID,
	).Scan(&t.ID, &t.Subject, &t.Category, &t.Name, &t.Difficulty, &t.TotalQuestions)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Topic{}, domain.NewNotFoundError("topic", topicID)
	}
	if err != nil {
		return domain.Topic{}, fmt.Errorf("load topic: %w", err)
	}
	return t, nil
}

func (c *Catalog) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, subject, category, name, difficulty, total_questions FROM topics ORDER BY subject, name`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	topics := make([]domain.Topic, 0)
	for rows.Next() {
		var t domain.Topic
		if err := rows.Scan(&t.ID, &t.Subject, &t.Category, &t.Name, &t.Difficulty, &t.TotalQuestions); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func (c *Catalog) FindActiveQuestions(ctx context.Context, topicID string, difficulty *domain.Difficulty) ([]domain.Question, error) {
	if _, err := c.FindTopic(ctx, topicID); err != nil {
		return nil, err
	}
	filter := ""
	if difficulty != nil {
		filter = string(*difficulty)
	}
	rows, err := c.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE topic_id=$1 AND active AND ($2 = '' OR difficulty = $2)
		 ORDER BY id`, topicID, filter)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// IncrementUsage adds one to each question in a single statement. If any id is
// unknown the transaction is rolled back and nothing changes.
func (c *Catalog) IncrementUsage(ctx context.Context, questionIDs []string) error {
	unique := make(map[string]struct{}, len(questionIDs))
	for _, id := range questionIDs {
		unique[id] = struct{}{}
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE questions SET usage_count = usage_count + 1 WHERE id = ANY($1)`, questionIDs)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if int(tag.RowsAffected()) != len(unique) {
		return domain.NewNotFoundError("question", fmt.Sprintf("%d of %d ids", len(unique)-int(tag.RowsAffected()), len(unique)))
	}
	return tx.Commit(ctx)
}

// AddTopic upserts topic metadata; total_questions is never taken from the input.
func (c *Catalog) AddTopic(ctx context.Context, topic domain.Topic) error {
	if topic.ID == "" {
		return domain.NewValidationError("id", "topic id is required")
	}
	if topic.Difficulty != "" && !topic.Difficulty.Valid() {
		return domain.NewValidationError("difficulty", fmt.Sprintf("topic %s has unknown difficulty %q", topic.ID, topic.Difficulty))
	}
	_, err := c.pool.Exec(ctx,
		`INSERT INTO topics (id, subject, category, name, difficulty, total_questions)
		 VALUES ($1, $2, $3, $4, $5,
		   (SELECT count(*) FROM questions WHERE topic_id=$1 AND active))
		 ON CONFLICT (id) DO UPDATE
		 SET subject=EXCLUDED.subject, category=EXCLUDED.category, name=EXCLUDED.name, difficulty=EXCLUDED.difficulty`,
		topic.ID, topic.Subject, topic.Category, topic.Name, string(topic.Difficulty))
	if err != nil {
		return fmt.Errorf("save topic: %w", err)
	}
	return nil
}

func (c *Catalog) AddQuestion(ctx context.Context, q domain.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var subject, category string
	err = tx.QueryRow(ctx, `SELECT subject, category FROM topics WHERE id=$1 FOR UPDATE`, q.TopicID).Scan(&subject, &category)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewNotFoundError("topic", q.TopicID)
	}
	if err != nil {
		return fmt.Errorf("lock topic: %w", err)
	}
	if q.Subject == "" {
		q.Subject = subject
	}
	if q.Category == "" {
		q.Category = category
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO questions (`+questionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO NOTHING`,
		q.ID, q.TopicID, q.Category, q.Subject, q.Text, q.Options, q.CorrectAnswer,
		string(q.Difficulty), q.PointValue(), q.Active, q.UsageCount, q.Explanation)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewValidationError("id", fmt.Sprintf("question %s already exists", q.ID))
	}
	if err := recount(ctx, tx, q.TopicID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (c *Catalog) DeactivateQuestion(ctx context.Context, questionID string) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var topicID string
	err = tx.QueryRow(ctx, `UPDATE questions SET active=false WHERE id=$1 RETURNING topic_id`, questionID).Scan(&topicID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewNotFoundError("question", questionID)
	}
	if err != nil {
		return fmt.Errorf("deactivate question: %w", err)
	}
	if err := recount(ctx, tx, topicID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func recount(ctx context.Context, tx pgx.Tx, topicID string) error {
	_, err := tx.Exec(ctx,
		`UPDATE topics SET total_questions =
		   (SELECT count(*) FROM questions WHERE topic_id=$1 AND active)
		 WHERE id=$1`, topicID)
	if err != nil {
		return fmt.Errorf("recount topic %s: %w", topicID, err)
	}
	return nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	err := row.Scan(&q.ID, &q.TopicID, &q.Category, &q.Subject, &q.Text, &q.Options, &q.CorrectAnswer,
		&q.Difficulty, &q.Points, &q.Active, &q.UsageCount, &q.Explanation)
	return q, err
}
