package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/mamacare/backend/internal/analysis/intent"
	"github.com/zhouzirui/mamacare/backend/internal/model/chat"
)

var (
	ErrEmptyResponses  = errors.New("category has no canned responses")
	ErrBlankResponse   = errors.New("canned response is blank")
	ErrMissingGreeting = errors.New("greeting is required")
	ErrMissingFallback = errors.New("rich fallback text is required")
	ErrInvalidRule     = errors.New("invalid rich rule")
)

// Catalog is the static content the assistant draws from: keyword tables,
// canned replies per category and the ordered rich rules.
type Catalog struct {
	Greeting        string
	VoiceTranscript string
	Keywords        intent.Keywords
	Responses       map[intent.Category][]string
	Rules           []RichRule
	Fallback        string
}

// RichRule produces text plus at most one attachment when any keyword is found in the raw text.
type RichRule struct {
	Name          string
	Keywords      []string
	Text          string
	Attachment    *chat.Attachment
	EnablesAIInfo bool
}

// RichReply is the outcome of the rich strategy.
type RichReply struct {
	Rule          string
	Text          string
	Attachments   []chat.Attachment
	EnablesAIInfo bool
}

// Picker selects an index in [0, n).
type Picker interface {
	IntN(n int) int
}

// Validate checks the data-integrity invariants the engine relies on.
func (c *Catalog) Validate() error {
	if strings.TrimSpace(c.Greeting) == "" {
		return ErrMissingGreeting
	}

	for _, category := range intent.Categories() {
		responses := c.Responses[category]
		if len(responses) == 0 {
			return fmt.Errorf("%s: %w", category, ErrEmptyResponses)
		}
		for i, text := range responses {
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("%s response %d: %w", category, i, ErrBlankResponse)
			}
		}
	}
	for category := range c.Responses {
		if !category.Valid() {
			return fmt.Errorf("unexpected response category %q", category)
		}
	}

	if _, err := intent.NewClassifier(c.Keywords); err != nil {
		return fmt.Errorf("keyword table: %w", err)
	}

	if strings.TrimSpace(c.Fallback) == "" {
		return ErrMissingFallback
	}
	for i, rule := range c.Rules {
		if err := rule.validate(); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
	}
	return nil
}

func (r RichRule) validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidRule)
	}
	if len(r.Keywords) == 0 {
		return fmt.Errorf("%w: keywords are required", ErrInvalidRule)
	}
	for _, word := range r.Keywords {
		if strings.TrimSpace(word) == "" {
			return fmt.Errorf("%w: blank keyword", ErrInvalidRule)
		}
	}
	if r.Attachment != nil {
		if r.Attachment.Data == nil {
			return fmt.Errorf("%w: %w", ErrInvalidRule, chat.ErrNilPayload)
		}
		if err := r.Attachment.Data.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
	}
	return nil
}

// Classifier builds the intent classifier over this catalog's keyword table.
func (c *Catalog) Classifier() (*intent.Classifier, error) {
	return intent.NewClassifier(c.Keywords)
}

// Respond picks one canned reply for the category. Unknown categories use the default list.
func (c *Catalog) Respond(category intent.Category, picker Picker) string {
	responses, ok := c.Responses[category]
	if !ok || len(responses) == 0 {
		responses = c.Responses[intent.Default]
	}
	if len(responses) == 0 {
		return c.Fallback
	}
	return responses[picker.IntN(len(responses))]
}

// RespondWithAttachments evaluates the rich rules in order over the raw text.
func (c *Catalog) RespondWithAttachments(rawText string) RichReply {
	normalized := strings.ToLower(rawText)
	for _, rule := range c.Rules {
		if !rule.matches(normalized) {
			continue
		}
		reply := RichReply{
			Rule:          rule.Name,
			Text:          rule.Text,
			Attachments:   []chat.Attachment{},
			EnablesAIInfo: rule.EnablesAIInfo,
		}
		if rule.Attachment != nil {
			reply.Attachments = append(reply.Attachments, *rule.Attachment)
		}
		return reply
	}
	return RichReply{Text: c.Fallback, Attachments: []chat.Attachment{}}
}

func (r RichRule) matches(normalized string) bool {
	for _, word := range r.Keywords {
		if strings.Contains(normalized, strings.ToLower(word)) {
			return true
		}
	}
	return false
}
