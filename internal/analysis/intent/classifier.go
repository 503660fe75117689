package intent

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the closed set of labels a user message is classified into.
type Category string

const (
	Growth      Category = "growth"
	Feeding     Category = "feeding"
	Sleep       Category = "sleep"
	Milestones  Category = "milestones"
	Symptoms    Category = "symptoms"
	Appointment Category = "appointment"
	Emergency   Category = "emergency"
	Default     Category = "default"
)

// Priority is the order categories are tested in. The first match wins.
var Priority = []Category{Growth, Feeding, Sleep, Milestones, Symptoms, Appointment, Emergency}

// Categories lists every label including the catch-all.
func Categories() []Category {
	return append(append([]Category(nil), Priority...), Default)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	if c == Default {
		return true
	}
	for _, known := range Priority {
		if c == known {
			return true
		}
	}
	return false
}

var ErrNoKeywords = errors.New("category has no keywords")

// Keywords maps each non-default category to the substrings that select it.
type Keywords map[Category][]string

type bucket struct {
	category Category
	keywords []string
}

// Classifier assigns a Category to free text by ordered substring matching.
type Classifier struct {
	buckets []bucket
}

// NewClassifier normalizes the keyword table into priority order.
// Every prioritized category must carry at least one non-blank keyword.
func NewClassifier(table Keywords) (*Classifier, error) {
	buckets := make([]bucket, 0, len(Priority))
	for _, category := range Priority {
		words := make([]string, 0, len(table[category]))
		for _, word := range table[category] {
			word = strings.ToLower(strings.TrimSpace(word))
			if word == "" {
				continue
			}
			words = append(words, word)
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("%s: %w", category, ErrNoKeywords)
		}
		buckets = append(buckets, bucket{category: category, keywords: words})
	}
	for category := range table {
		if category == Default || !category.Valid() {
			return nil, fmt.Errorf("unexpected keyword category %q", category)
		}
	}
	return &Classifier{buckets: buckets}, nil
}

// Classify returns the first category, in priority order, with a keyword contained in text.
func (c *Classifier) Classify(text string) Category {
	normalized := strings.ToLower(text)
	for _, b := range c.buckets {
		if containsAny(normalized, b.keywords) {
			return b.category
		}
	}
	return Default
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
