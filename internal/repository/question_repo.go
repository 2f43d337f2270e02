package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"partyquiz/internal/model"
)

// QuestionRepo is the question bank sessions draw their questions from.
type QuestionRepo interface {
	InsertMany(ctx context.Context, questions []model.Question) (int, error)
	Categories(ctx context.Context) ([]string, error)
	// Sample returns up to n random questions of category.
	Sample(ctx context.Context, category string, n int) ([]model.Question, error)
	Ping(ctx context.Context) error
}

type questionRepo struct {
	collection *mongo.Collection
}

// NewQuestionRepo creates a Mongo-backed question bank over db.questions.
func NewQuestionRepo(db *mongo.Database) QuestionRepo {
	return &questionRepo{
		collection: db.Collection("questions"),
	}
}

func (r *questionRepo) InsertMany(ctx context.Context, questions []model.Question) (int, error) {
	if len(questions) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, len(questions))
	for i := range questions {
		if err := questions[i].Validate(); err != nil {
			return 0, err
		}
		docs[i] = questions[i]
	}

	res, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to insert questions: %w", err)
	}
	return len(res.InsertedIDs), nil
}

func (r *questionRepo) Categories(ctx context.Context) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "category", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("%w: listing categories: %v", model.ErrStoreUnavailable, err)
	}
	categories := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			categories = append(categories, s)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (r *questionRepo) Sample(ctx context.Context, category string, n int) ([]model.Question, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"category": category}}},
		{{Key: "$sample", Value: bson.M{"size": n}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("%w: sampling %s: %v", model.ErrStoreUnavailable, category, err)
	}
	defer cursor.Close(ctx)

	var questions []model.Question
	if err = cursor.All(ctx, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	return questions, nil
}

func (r *questionRepo) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, nil)
}

//go:embed questions.json
var defaultQuestionsJSON []byte

// DefaultQuestions is the bundled starter question bank.
func DefaultQuestions() ([]model.Question, error) {
	var questions []model.Question
	if err := json.Unmarshal(defaultQuestionsJSON, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode bundled questions: %w", err)
	}
	return questions, nil
}

type staticQuestionRepo struct {
	byCategory map[string][]model.Question
}

// NewStaticQuestionRepo serves a fixed set of questions from memory, for
// runs without Mongo.
func NewStaticQuestionRepo(questions []model.Question) QuestionRepo {
	r := &staticQuestionRepo{byCategory: make(map[string][]model.Question)}
	for _, q := range questions {
		r.byCategory[q.Category] = append(r.byCategory[q.Category], q)
	}
	return r
}

func (r *staticQuestionRepo) InsertMany(_ context.Context, questions []model.Question) (int, error) {
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return 0, err
		}
		r.byCategory[q.Category] = append(r.byCategory[q.Category], q)
	}
	return len(questions), nil
}

func (r *staticQuestionRepo) Categories(context.Context) ([]string, error) {
	categories := make([]string, 0, len(r.byCategory))
	for c := range r.byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, nil
}

func (r *staticQuestionRepo) Sample(_ context.Context, category string, n int) ([]model.Question, error) {
	pool := append([]model.Question(nil), r.byCategory[category]...)
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool, nil
}

func (r *staticQuestionRepo) Ping(context.Context) error { return nil }
