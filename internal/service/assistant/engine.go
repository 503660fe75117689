package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/zhouzirui/mamacare/backend/internal/analysis/intent"
	"github.com/zhouzirui/mamacare/backend/internal/catalog"
	"github.com/zhouzirui/mamacare/backend/internal/model/chat"
)

// Mode selects how replies are produced.
type Mode string

const (
	// ModePlain answers with a canned text for the classified category.
	ModePlain Mode = "plain"
	// ModeRich answers from keyword rules over the raw text and may attach rich content.
	ModeRich Mode = "rich"
)

var (
	ErrUnknownMode    = errors.New("unknown assistant mode")
	ErrCatalogMissing = errors.New("catalog is required")
)

// ParseMode maps a configuration value to a Mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModePlain:
		return ModePlain, nil
	case ModeRich:
		return ModeRich, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
}

// Reply is what the assistant answers to one user message.
type Reply struct {
	Category      intent.Category
	Rule          string
	Text          string
	Attachments   []chat.Attachment
	EnablesAIInfo bool
}

type turn struct {
	text     string
	category intent.Category
}

// Engine turns user text into a Reply: classify, then respond with the configured strategy.
// It holds no conversation state and is safe for concurrent use.
type Engine struct {
	mode       Mode
	catalog    *catalog.Catalog
	classifier *intent.Classifier
	picker     catalog.Picker
	chain      compose.Runnable[string, Reply]
}

// NewEngine compiles the classify -> respond chain for mode.
// A nil picker falls back to the runtime random source.
func NewEngine(ctx context.Context, cat *catalog.Catalog, mode Mode, picker catalog.Picker) (*Engine, error) {
	if cat == nil {
		return nil, ErrCatalogMissing
	}

	classifier, err := cat.Classifier()
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	if picker == nil {
		picker = catalog.NewRandomPicker()
	}

	e := &Engine{
		mode:       mode,
		catalog:    cat,
		classifier: classifier,
		picker:     picker,
	}

	chain := compose.NewChain[string, Reply]()
	chain.AppendLambda(compose.InvokableLambda(e.classify))
	switch mode {
	case ModePlain:
		chain.AppendLambda(compose.InvokableLambda(e.respondPlain))
	case ModeRich:
		chain.AppendLambda(compose.InvokableLambda(e.respondRich))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}
	e.chain = runnable

	return e, nil
}

// Mode reports the strategy the engine was built with.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Classify exposes the intent classification on its own.
func (e *Engine) Classify(text string) intent.Category {
	return e.classifier.Classify(text)
}

// Reply derives the assistant reply for one user message.
func (e *Engine) Reply(ctx context.Context, text string) (Reply, error) {
	reply, err := e.chain.Invoke(ctx, text)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to run reply chain: %w", err)
	}
	return reply, nil
}

// Fallback is used when Reply fails; it never needs the chain.
func (e *Engine) Fallback() Reply {
	return Reply{
		Category:    intent.Default,
		Text:        e.catalog.Respond(intent.Default, e.picker),
		Attachments: []chat.Attachment{},
	}
}

func (e *Engine) classify(_ context.Context, text string) (turn, error) {
	return turn{text: text, category: e.classifier.Classify(text)}, nil
}

func (e *Engine) respondPlain(_ context.Context, t turn) (Reply, error) {
	return Reply{
		Category:    t.category,
		Text:        e.catalog.Respond(t.category, e.picker),
		Attachments: []chat.Attachment{},
	}, nil
}

func (e *Engine) respondRich(_ context.Context, t turn) (Reply, error) {
	rich := e.catalog.RespondWithAttachments(t.text)
	return Reply{
		Category:      t.category,
		Rule:          rich.Rule,
		Text:          rich.Text,
		Attachments:   rich.Attachments,
		EnablesAIInfo: rich.EnablesAIInfo,
	}, nil
}
