package model

import "fmt"

// Difficulty grades a question in the question bank.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

const (
	DefaultPoints    = 100
	DefaultTimeLimit = 30
)

// Question is a multiple-choice question. TimeLimit is in seconds.
type Question struct {
	ID                 string     `json:"id" bson:"_id"`
	Text               string     `json:"text" bson:"text"`
	Options            []string   `json:"options" bson:"options"`
	CorrectOptionIndex int        `json:"correctOptionIndex" bson:"correctOptionIndex"`
	Category           string     `json:"category" bson:"category"`
	Points             int        `json:"points" bson:"points"`
	TimeLimit          int        `json:"timeLimit" bson:"timeLimit"`
	Difficulty         Difficulty `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
}

// ApplyDefaults fills zero points and time limit with the house defaults.
func (q *Question) ApplyDefaults(timeLimit int) {
	if q.Points == 0 {
		q.Points = DefaultPoints
	}
	if q.TimeLimit == 0 {
		q.TimeLimit = timeLimit
	}
}

// Validate checks a question is answerable.
func (q *Question) Validate() error {
	switch {
	case q.ID == "":
		return fmt.Errorf("%w: question id is required", ErrInvalidInput)
	case q.Text == "":
		return fmt.Errorf("%w: question %s has no text", ErrInvalidInput, q.ID)
	case len(q.Options) < 2:
		return fmt.Errorf("%w: question %s needs at least two options", ErrInvalidInput, q.ID)
	case q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options):
		return fmt.Errorf("%w: question %s correct option %d out of range", ErrInvalidInput, q.ID, q.CorrectOptionIndex)
	case q.Points < 0:
		return fmt.Errorf("%w: question %s has negative points", ErrInvalidInput, q.ID)
	case q.TimeLimit <= 0:
		return fmt.Errorf("%w: question %s needs a positive time limit", ErrInvalidInput, q.ID)
	case q.Category == "":
		return fmt.Errorf("%w: question %s has no category", ErrInvalidInput, q.ID)
	}
	return nil
}

// HasOption reports whether idx addresses one of the question's options.
func (q *Question) HasOption(idx int) bool {
	return idx >= 0 && idx < len(q.Options)
}
