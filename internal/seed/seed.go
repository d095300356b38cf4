// Package seed loads a YAML question catalog and writes it into a catalog store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"quiz-engine-service/internal/domain"
)

// File is the root of a catalog YAML document.
type File struct {
	Topics []Topic `yaml:"topics"`
}

type Topic struct {
	ID         string     `yaml:"id"`
	Subject    string     `yaml:"subject"`
	Category   string     `yaml:"category"`
	Name       string     `yaml:"name"`
	Difficulty string     `yaml:"difficulty"`
	Questions  []Question `yaml:"questions"`
}

type Question struct {
	ID          string   `yaml:"id"`
	Text        string   `yaml:"text"`
	Options     []string `yaml:"options"`
	Answer      string   `yaml:"answer"`
	Difficulty  string   `yaml:"difficulty"`
	Points      int      `yaml:"points"`
	Explanation string   `yaml:"explanation"`
	Active      *bool    `yaml:"active"` // defaults to true
}

// Writer is the catalog write side. The memory and Postgres catalogs satisfy
// it, and so do the caching decorators that wrap them.
type Writer interface {
	AddTopic(ctx context.Context, topic domain.Topic) error
	AddQuestion(ctx context.Context, q domain.Question) error
	DeactivateQuestion(ctx context.Context, questionID string) error
}

// Stats counts what Apply wrote.
type Stats struct {
	Topics    int
	Questions int
	Skipped   int
	Retired   int
}

// Load reads a catalog file from path.
func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()
	file, err := Decode(f)
	if err != nil {
		return File{}, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return file, nil
}

// Decode parses a catalog document.
func Decode(r io.Reader) (File, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return File{}, err
	}
	return file, nil
}

// Apply writes every topic and question. Questions that already exist are
// skipped so a catalog can be re-applied, except that an existing question
// marked `active: false` is retired. Any other invalid entry aborts.
func Apply(ctx context.Context, w Writer, file File, logger *zap.Logger) (Stats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var stats Stats
	for _, t := range file.Topics {
		topic := domain.Topic{
			ID:         t.ID,
			Subject:    t.Subject,
			Category:   t.Category,
			Name:       t.Name,
			Difficulty: domain.Difficulty(t.Difficulty),
		}
		if err := w.AddTopic(ctx, topic); err != nil {
			return stats, fmt.Errorf("topic %s: %w", t.ID, err)
		}
		stats.Topics++

		for _, q := range t.Questions {
			err := w.AddQuestion(ctx, q.toDomain(t))
			if q.ID != "" && isDuplicate(err) {
				if q.Active != nil && !*q.Active {
					if err := w.DeactivateQuestion(ctx, q.ID); err != nil {
						return stats, fmt.Errorf("retire question %s: %w", q.ID, err)
					}
					stats.Retired++
					logger.Info("question retired", zap.String("question_id", q.ID))
					continue
				}
				stats.Skipped++
				logger.Debug("question already seeded", zap.String("question_id", q.ID))
				continue
			}
			if err != nil {
				return stats, fmt.Errorf("question %s in topic %s: %w", q.ID, t.ID, err)
			}
			stats.Questions++
		}
	}
	logger.Info("catalog seeded",
		zap.Int("topics", stats.Topics),
		zap.Int("questions", stats.Questions),
		zap.Int("skipped", stats.Skipped),
		zap.Int("retired", stats.Retired),
	)
	return stats, nil
}

func (q Question) toDomain(t Topic) domain.Question {
	active := true
	if q.Active != nil {
		active = *q.Active
	}
	difficulty := q.Difficulty
	if difficulty == "" {
		difficulty = t.Difficulty
	}
	return domain.Question{
		ID:            q.ID,
		TopicID:       t.ID,
		Category:      t.Category,
		Subject:       t.Subject,
		Text:          q.Text,
		Options:       q.Options,
		CorrectAnswer: q.Answer,
		Difficulty:    domain.Difficulty(difficulty),
		Points:        q.Points,
		Active:        active,
		Explanation:   q.Explanation,
	}
}

func isDuplicate(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr) && verr.Field == "id"
}
