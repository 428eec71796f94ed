// Package grading scores submission answers that can be checked without a
// human reviewer.
package grading

import (
	"lms_core/backend/internal/shared"
)

// Result is the outcome of grading one question
type Result struct {
	QuestionID  string  `json:"questionId" bson:"question_id"`
	Type        string  `json:"type" bson:"type"`
	AutoPoints  float64 `json:"autoPoints" bson:"auto_points"`
	MaxPoints   float64 `json:"maxPoints" bson:"max_points"`
	NeedsManual bool    `json:"needsManual" bson:"needs_manual"`
	Feedback    string  `json:"feedback,omitempty" bson:"feedback,omitempty"`
}

// Summary aggregates the results of a whole submission
type Summary struct {
	Results     []Result `json:"results" bson:"results"`
	AutoTotal   float64  `json:"autoTotal" bson:"auto_total"`
	MaxTotal    float64  `json:"maxTotal" bson:"max_total"`
	NeedsManual bool     `json:"needsManual" bson:"needs_manual"`
}

// Strategy grades one question type
type Strategy interface {
	Grade(q shared.Question, answer interface{}) Result
}

// Grader routes each question to the strategy registered for its type.
// Types without a strategy are left for manual review.
type Grader struct {
	strategies map[string]Strategy
}

// NewGrader installs the built-in strategies
func NewGrader() *Grader {
	return &Grader{
		strategies: map[string]Strategy{
			shared.QuestionMCQ: mcqStrategy{},
		},
	}
}

var defaultGrader = NewGrader()

// Grade scores one answer with the default grader
func Grade(q shared.Question, answer interface{}) Result {
	return defaultGrader.Grade(q, answer)
}

// Grade scores one answer
func (g *Grader) Grade(q shared.Question, answer interface{}) Result {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{
			QuestionID:  q.ID.Hex(),
			Type:        q.Type,
			MaxPoints:   q.Points,
			NeedsManual: true,
			Feedback:    "manual review required",
		}
	}
	return s.Grade(q, answer)
}

// GradeAll scores every question against the submission's answers
func (g *Grader) GradeAll(questions []shared.Question, sub *shared.ExamSubmission) Summary {
	summary := Summary{Results: make([]Result, 0, len(questions))}
	for _, q := range questions {
		answer, _ := sub.Answer(q.ID.Hex())
		res := g.Grade(q, answer)

		summary.Results = append(summary.Results, res)
		summary.AutoTotal += res.AutoPoints
		summary.MaxTotal += res.MaxPoints
		if res.NeedsManual {
			summary.NeedsManual = true
		}
	}
	summary.AutoTotal = shared.Round2(summary.AutoTotal)
	summary.MaxTotal = shared.Round2(summary.MaxTotal)
	return summary
}

// --- Strategies ---

// mcqStrategy awards full points when the answer matches the key ignoring
// case and surrounding whitespace.
type mcqStrategy struct{}

func (mcqStrategy) Grade(q shared.Question, answer interface{}) Result {
	res := Result{QuestionID: q.ID.Hex(), Type: q.Type, MaxPoints: q.Points}

	if shared.NormalizeAnswer(q.Answer) == "" {
		res.NeedsManual = true
		res.Feedback = "no answer key"
		return res
	}

	resp, ok := answer.(string)
	if !ok {
		res.Feedback = "answer must be text"
		return res
	}

	if shared.NormalizeAnswer(resp) == shared.NormalizeAnswer(q.Answer) {
		res.AutoPoints = q.Points
	}
	return res
}
