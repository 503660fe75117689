package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/mamacare/backend/internal/analysis/intent"
	"github.com/zhouzirui/mamacare/backend/internal/model/chat"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type fileCatalog struct {
	Greeting        string                  `yaml:"greeting"`
	VoiceTranscript string                  `yaml:"voiceTranscript"`
	Categories      map[string]fileCategory `yaml:"categories"`
	Rich            fileRich                `yaml:"rich"`
}

type fileCategory struct {
	Keywords  []string `yaml:"keywords"`
	Responses []string `yaml:"responses"`
}

type fileRich struct {
	Fallback string     `yaml:"fallback"`
	Rules    []fileRule `yaml:"rules"`
}

type fileRule struct {
	Name          string          `yaml:"name"`
	Keywords      []string        `yaml:"keywords"`
	Text          string          `yaml:"text"`
	EnablesAIInfo bool            `yaml:"enablesAiInfo"`
	Attachment    *fileAttachment `yaml:"attachment"`
}

type fileAttachment struct {
	Type     chat.AttachmentType `yaml:"type"`
	Videos   []chat.Video        `yaml:"videos"`
	Growth   *chat.GrowthSeries  `yaml:"growth"`
	Articles []chat.Article      `yaml:"articles"`
	QRCode   *chat.QRCode        `yaml:"qrCode"`
}

// Default returns the catalog shipped with the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes YAML catalog content and validates it.
func Parse(data []byte) (*Catalog, error) {
	var file fileCatalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	cat := &Catalog{
		Greeting:        strings.TrimSpace(file.Greeting),
		VoiceTranscript: strings.TrimSpace(file.VoiceTranscript),
		Keywords:        make(intent.Keywords),
		Responses:       make(map[intent.Category][]string),
		Fallback:        strings.TrimSpace(file.Rich.Fallback),
	}

	for name, entry := range file.Categories {
		category := intent.Category(strings.ToLower(strings.TrimSpace(name)))
		if !category.Valid() {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		cat.Responses[category] = append([]string(nil), entry.Responses...)
		if category == intent.Default {
			if len(entry.Keywords) > 0 {
				return nil, fmt.Errorf("default category cannot declare keywords")
			}
			continue
		}
		cat.Keywords[category] = append([]string(nil), entry.Keywords...)
	}

	cat.Rules = make([]RichRule, 0, len(file.Rich.Rules))
	for i, rule := range file.Rich.Rules {
		built := RichRule{
			Name:          rule.Name,
			Keywords:      append([]string(nil), rule.Keywords...),
			Text:          strings.TrimSpace(rule.Text),
			EnablesAIInfo: rule.EnablesAIInfo,
		}
		if rule.Attachment != nil {
			att, err := rule.Attachment.build()
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
			}
			built.Attachment = &att
		}
		cat.Rules = append(cat.Rules, built)
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (f *fileAttachment) build() (chat.Attachment, error) {
	switch f.Type {
	case chat.AttachmentVideo:
		return chat.NewVideoAttachment(f.Videos...)
	case chat.AttachmentGrowthSeries:
		if f.Growth == nil {
			return chat.Attachment{}, chat.ErrEmptySeries
		}
		return chat.NewGrowthAttachment(*f.Growth)
	case chat.AttachmentArticleList:
		return chat.NewArticleAttachment(f.Articles...)
	case chat.AttachmentAIInfo:
		return chat.NewAIInfoAttachment(), nil
	case chat.AttachmentQRCode:
		if f.QRCode == nil {
			return chat.Attachment{}, chat.ErrEmptyQRCode
		}
		return chat.NewQRCodeAttachment(f.QRCode.Value, f.QRCode.Label)
	default:
		return chat.Attachment{}, fmt.Errorf("%w: %q", chat.ErrUnknownAttachment, f.Type)
	}
}
