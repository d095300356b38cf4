package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quiz-engine-service/internal/domain"
)

// Catalog is an in-memory content catalog. All mutations, including usage
// increments, happen under one lock so concurrent samplers never lose updates.
type Catalog struct {
	mu        sync.RWMutex
	topics    map[string]*domain.Topic
	questions map[string]*domain.Question
	byTopic   map[string][]string // question ids in insertion order
}

func NewCatalog() *Catalog {
	return &Catalog{
		topics:    make(map[string]*domain.Topic),
		questions: make(map[string]*domain.Question),
		byTopic:   make(map[string][]string),
	}
}

// AddTopic inserts or updates a topic. TotalQuestions is always derived.
func (c *Catalog) AddTopic(_ context.Context, topic domain.Topic) error {
	if topic.ID == "" {
		return domain.NewValidationError("id", "topic id is required")
	}
	if topic.Difficulty != "" && !topic.Difficulty.Valid() {
		return domain.NewValidationError("difficulty", fmt.Sprintf("topic %s has unknown difficulty %q", topic.ID, topic.Difficulty))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	topic.TotalQuestions = c.countActiveLocked(topic.ID)
	c.topics[topic.ID] = &topic
	return nil
}

// AddQuestion validates and stores a question under an existing topic.
func (c *Catalog) AddQuestion(_ context.Context, q domain.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	q.Options = append([]string(nil), q.Options...)
	q.Points = q.PointValue()

	c.mu.Lock()
	defer c.mu.Unlock()

	topic, ok := c.topics[q.TopicID]
	if !ok {
		return domain.NewNotFoundError("topic", q.TopicID)
	}
	if _, exists := c.questions[q.ID]; exists {
		return domain.NewValidationError("id", fmt.Sprintf("question %s already exists", q.ID))
	}
	if q.Subject == "" {
		q.Subject = topic.Subject
	}
	if q.Category == "" {
		q.Category = topic.Category
	}
	c.questions[q.ID] = &q
	c.byTopic[q.TopicID] = append(c.byTopic[q.TopicID], q.ID)
	topic.TotalQuestions = c.countActiveLocked(q.TopicID)
	return nil
}

// DeactivateQuestion retires a question; it is no longer served.
func (c *Catalog) DeactivateQuestion(_ context.Context, questionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.questions[questionID]
	if !ok {
		return domain.NewNotFoundError("question", questionID)
	}
	q.Active = false
	if topic, ok := c.topics[q.TopicID]; ok {
		topic.TotalQuestions = c.countActiveLocked(q.TopicID)
	}
	return nil
}

func (c *Catalog) FindTopic(_ context.Context, topicID string) (domain.Topic, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topic, ok := c.topics[topicID]
	if !ok {
		return domain.Topic{}, domain.NewNotFoundError("topic", topicID)
	}
	return *topic, nil
}

// ListTopics returns every topic ordered by subject, then name.
func (c *Catalog) ListTopics(_ context.Context) ([]domain.Topic, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]domain.Topic, 0, len(c.topics))
	for _, t := range c.topics {
		topics = append(topics, *t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Subject != topics[j].Subject {
			return topics[i].Subject < topics[j].Subject
		}
		return topics[i].Name < topics[j].Name
	})
	return topics, nil
}

func (c *Catalog) FindActiveQuestions(_ context.Context, topicID string, difficulty *domain.Difficulty) ([]domain.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.topics[topicID]; !ok {
		return nil, domain.NewNotFoundError("topic", topicID)
	}
	out := make([]domain.Question, 0, len(c.byTopic[topicID]))
	for _, id := range c.byTopic[topicID] {
		q := c.questions[id]
		if !q.Active {
			continue
		}
		if difficulty != nil && q.Difficulty != *difficulty {
			continue
		}
		cp := *q
		cp.Options = append([]string(nil), q.Options...)
		out = append(out, cp)
	}
	return out, nil
}

// IncrementUsage adds one to every listed question. Unknown ids fail the whole call.
func (c *Catalog) IncrementUsage(_ context.Context, questionIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range questionIDs {
		if _, ok := c.questions[id]; !ok {
			return domain.NewNotFoundError("question", id)
		}
	}
	for _, id := range questionIDs {
		c.questions[id].UsageCount++
	}
	return nil
}

// Question returns a copy of a stored question, for inspection.
func (c *Catalog) Question(questionID string) (domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.questions[questionID]
	if !ok {
		return domain.Question{}, false
	}
	return *q, true
}

func (c *Catalog) countActiveLocked(topicID string) int {
	n := 0
	for _, id := range c.byTopic[topicID] {
		if c.questions[id].Active {
			n++
		}
	}
	return n
}
