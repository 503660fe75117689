package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// AttachmentType is the tag renderers switch on.
type AttachmentType string

const (
	AttachmentVideo        AttachmentType = "video"
	AttachmentGrowthSeries AttachmentType = "growthSeries"
	AttachmentArticleList  AttachmentType = "articleList"
	AttachmentAIInfo       AttachmentType = "aiInfo"
	AttachmentQRCode       AttachmentType = "qrCode"
)

var (
	ErrNilPayload         = errors.New("attachment payload is required")
	ErrEmptyVideoList     = errors.New("video attachment requires at least one video")
	ErrEmptyArticleList   = errors.New("article attachment requires at least one article")
	ErrEmptySeries        = errors.New("growth series requires at least one point")
	ErrMismatchedSeries   = errors.New("growth series months, weights and heights differ in length")
	ErrPercentileRange    = errors.New("growth series percentile must be within 0-100")
	ErrEmptyQRCode        = errors.New("qr code attachment requires a value")
	ErrUnknownAttachment  = errors.New("unknown attachment type")
	ErrMissingItemTitle   = errors.New("attachment item requires an id and a title")
	ErrDuplicateAttachReg = errors.New("attachment type already registered")
)

// Payload is the variant specific body of an Attachment.
type Payload interface {
	AttachmentType() AttachmentType
	Validate() error
}

// Video is one suggested clip.
type Video struct {
	ID            string `json:"id" yaml:"id"`
	Title         string `json:"title" yaml:"title"`
	ThumbnailRef  string `json:"thumbnailRef" yaml:"thumbnailRef"`
	DurationLabel string `json:"durationLabel" yaml:"durationLabel"`
}

// VideoList is the payload of a video attachment.
type VideoList []Video

func (VideoList) AttachmentType() AttachmentType { return AttachmentVideo }

func (v VideoList) Validate() error {
	if len(v) == 0 {
		return ErrEmptyVideoList
	}
	for i, item := range v {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Title) == "" {
			return fmt.Errorf("video %d: %w", i, ErrMissingItemTitle)
		}
	}
	return nil
}

// GrowthSeries carries parallel month/weight/height samples for a growth chart.
type GrowthSeries struct {
	Months     []int     `json:"months" yaml:"months"`
	Weights    []float64 `json:"weights" yaml:"weights"`
	Heights    []float64 `json:"heights" yaml:"heights"`
	Percentile int       `json:"percentile" yaml:"percentile"`
}

func (GrowthSeries) AttachmentType() AttachmentType { return AttachmentGrowthSeries }

func (g GrowthSeries) Validate() error {
	if len(g.Months) == 0 {
		return ErrEmptySeries
	}
	if len(g.Weights) != len(g.Months) || len(g.Heights) != len(g.Months) {
		return fmt.Errorf("%w: months=%d weights=%d heights=%d",
			ErrMismatchedSeries, len(g.Months), len(g.Weights), len(g.Heights))
	}
	if g.Percentile < 0 || g.Percentile > 100 {
		return fmt.Errorf("%w: got %d", ErrPercentileRange, g.Percentile)
	}
	return nil
}

// Article is one suggested reading.
type Article struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// ArticleList is the payload of an article attachment.
type ArticleList []Article

func (ArticleList) AttachmentType() AttachmentType { return AttachmentArticleList }

func (a ArticleList) Validate() error {
	if len(a) == 0 {
		return ErrEmptyArticleList
	}
	for i, item := range a {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Title) == "" {
			return fmt.Errorf("article %d: %w", i, ErrMissingItemTitle)
		}
	}
	return nil
}

// AIInfo marks that the renderer may show model and source information.
type AIInfo struct{}

func (AIInfo) AttachmentType() AttachmentType { return AttachmentAIInfo }

func (AIInfo) Validate() error { return nil }

// QRCode is used for prescription hand-off codes.
type QRCode struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label,omitempty" yaml:"label"`
}

func (QRCode) AttachmentType() AttachmentType { return AttachmentQRCode }

func (q QRCode) Validate() error {
	if strings.TrimSpace(q.Value) == "" {
		return ErrEmptyQRCode
	}
	return nil
}

// Attachment is structured content carried by an assistant message.
// Build it through NewAttachment or the typed constructors so the payload is validated.
type Attachment struct {
	Type AttachmentType
	Data Payload
}

// NewAttachment validates the payload and tags it.
func NewAttachment(p Payload) (Attachment, error) {
	if p == nil {
		return Attachment{}, ErrNilPayload
	}
	if err := p.Validate(); err != nil {
		return Attachment{}, fmt.Errorf("invalid %s attachment: %w", p.AttachmentType(), err)
	}
	return Attachment{Type: p.AttachmentType(), Data: p}, nil
}

func NewVideoAttachment(videos ...Video) (Attachment, error) {
	return NewAttachment(append(VideoList(nil), videos...))
}

func NewGrowthAttachment(series GrowthSeries) (Attachment, error) {
	series.Months = append([]int(nil), series.Months...)
	series.Weights = append([]float64(nil), series.Weights...)
	series.Heights = append([]float64(nil), series.Heights...)
	return NewAttachment(series)
}

func NewArticleAttachment(articles ...Article) (Attachment, error) {
	return NewAttachment(append(ArticleList(nil), articles...))
}

func NewAIInfoAttachment() Attachment {
	return Attachment{Type: AttachmentAIInfo, Data: AIInfo{}}
}

func NewQRCodeAttachment(value, label string) (Attachment, error) {
	return NewAttachment(QRCode{Value: value, Label: label})
}

type attachmentWire struct {
	Type AttachmentType  `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the attachment as {"type": ..., "data": ...}.
func (a Attachment) MarshalJSON() ([]byte, error) {
	if a.Data == nil {
		return nil, ErrNilPayload
	}
	data, err := json.Marshal(a.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(attachmentWire{Type: a.Type, Data: data})
}

// UnmarshalJSON decodes a tagged attachment using the registered decoder for its type.
func (a *Attachment) UnmarshalJSON(raw []byte) error {
	var wire attachmentWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	decode, ok := lookupDecoder(wire.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAttachment, wire.Type)
	}

	payload, err := decode(wire.Data)
	if err != nil {
		return fmt.Errorf("decode %s attachment: %w", wire.Type, err)
	}

	decoded, err := NewAttachment(payload)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// PayloadDecoder turns the raw "data" member of an attachment into a payload.
type PayloadDecoder func(json.RawMessage) (Payload, error)

var (
	decodersMu sync.RWMutex
	decoders   = map[AttachmentType]PayloadDecoder{
		AttachmentVideo:        decodeAs[VideoList],
		AttachmentGrowthSeries: decodeAs[GrowthSeries],
		AttachmentArticleList:  decodeAs[ArticleList],
		AttachmentAIInfo:       func(json.RawMessage) (Payload, error) { return AIInfo{}, nil },
		AttachmentQRCode:       decodeAs[QRCode],
	}
)

// RegisterAttachment adds a decoder for a new attachment type.
func RegisterAttachment(t AttachmentType, decode PayloadDecoder) error {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	if _, exists := decoders[t]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateAttachReg, t)
	}
	decoders[t] = decode
	return nil
}

func lookupDecoder(t AttachmentType) (PayloadDecoder, bool) {
	decodersMu.RLock()
	defer decodersMu.RUnlock()
	decode, ok := decoders[t]
	return decode, ok
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var payload T
	if len(raw) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
