package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DefaultAspectRatio is used when a request omits the aspect ratio.
	DefaultAspectRatio = "1:1"
	// DefaultQuality is the baseline generation quality tier.
	DefaultQuality = "standard"
	// MaxCarouselSlides caps the number of slides in a carousel request.
	MaxCarouselSlides = 10
	// MaxVideoDurationSeconds caps a single video request.
	MaxVideoDurationSeconds = 180
)

var allowedAspectRatios = map[string]struct{}{
	"1:1":  {},
	"4:3":  {},
	"3:4":  {},
	"16:9": {},
	"9:16": {},
}

var allowedQualities = map[string]struct{}{
	"draft":    {},
	"standard": {},
	"premium":  {},
}

// Payload is the closed set of typed job request variants. Requests are
// validated here at the enqueue boundary; the idempotency canonicalizer
// operates on Document(), never on raw client JSON.
type Payload interface {
	Kind() JobKind
	Normalize()
	Validate() error
	// Document returns the canonical field map used for fingerprinting
	// and persisted as the job payload.
	Document() map[string]any
}

// ImagePayload requests a single marketing image.
type ImagePayload struct {
	Prompt      string   `json:"prompt"`
	Style       string   `json:"style"`
	AspectRatio string   `json:"aspect_ratio"`
	Resolution  string   `json:"resolution"`
	Quality     string   `json:"quality"`
	References  []string `json:"references"`
}

func (p *ImagePayload) Kind() JobKind { return JobKindImage }

func (p *ImagePayload) Normalize() {
	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspectRatio
	}
	if p.Quality == "" {
		p.Quality = DefaultQuality
	}
	if p.Resolution == "" {
		p.Resolution = "1080p"
	}
}

func (p *ImagePayload) Validate() error {
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidPayload)
	}
	if _, ok := allowedAspectRatios[p.AspectRatio]; !ok {
		return fmt.Errorf("%w: unsupported aspect ratio %q", ErrInvalidPayload, p.AspectRatio)
	}
	if _, ok := allowedQualities[p.Quality]; !ok {
		return fmt.Errorf("%w: unsupported quality %q", ErrInvalidPayload, p.Quality)
	}
	return nil
}

func (p *ImagePayload) Document() map[string]any {
	return map[string]any{
		"prompt":       p.Prompt,
		"style":        p.Style,
		"aspect_ratio": p.AspectRatio,
		"resolution":   p.Resolution,
		"quality":      p.Quality,
		"references":   stringsToAny(p.References),
	}
}

// CarouselSlide is one panel of a carousel request.
type CarouselSlide struct {
	Prompt  string `json:"prompt"`
	Caption string `json:"caption"`
}

// CarouselPayload requests an ordered set of images.
type CarouselPayload struct {
	Slides      []CarouselSlide `json:"slides"`
	Style       string          `json:"style"`
	AspectRatio string          `json:"aspect_ratio"`
	Quality     string          `json:"quality"`
}

func (p *CarouselPayload) Kind() JobKind { return JobKindCarousel }

func (p *CarouselPayload) Normalize() {
	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspectRatio
	}
	if p.Quality == "" {
		p.Quality = DefaultQuality
	}
}

func (p *CarouselPayload) Validate() error {
	if len(p.Slides) == 0 {
		return fmt.Errorf("%w: at least one slide is required", ErrInvalidPayload)
	}
	if len(p.Slides) > MaxCarouselSlides {
		return fmt.Errorf("%w: at most %d slides", ErrInvalidPayload, MaxCarouselSlides)
	}
	for i, slide := range p.Slides {
		if strings.TrimSpace(slide.Prompt) == "" {
			return fmt.Errorf("%w: slide %d prompt is required", ErrInvalidPayload, i)
		}
	}
	if _, ok := allowedAspectRatios[p.AspectRatio]; !ok {
		return fmt.Errorf("%w: unsupported aspect ratio %q", ErrInvalidPayload, p.AspectRatio)
	}
	if _, ok := allowedQualities[p.Quality]; !ok {
		return fmt.Errorf("%w: unsupported quality %q", ErrInvalidPayload, p.Quality)
	}
	return nil
}

func (p *CarouselPayload) Document() map[string]any {
	slides := make([]any, 0, len(p.Slides))
	for _, s := range p.Slides {
		slides = append(slides, map[string]any{
			"prompt":  s.Prompt,
			"caption": s.Caption,
		})
	}
	return map[string]any{
		"slides":       slides,
		"style":        p.Style,
		"aspect_ratio": p.AspectRatio,
		"quality":      p.Quality,
	}
}

// VideoPayload requests a composite multi-step video.
type VideoPayload struct {
	Brief           string  `json:"brief"`
	Format          string  `json:"format"`
	AspectRatio     string  `json:"aspect_ratio"`
	DurationSeconds int     `json:"duration_seconds"`
	Quality         string  `json:"quality"`
	Voiceover       bool    `json:"voiceover"`
	VoiceoverScript string  `json:"voiceover_script"`
	Music           bool    `json:"music"`
	MusicMood       string  `json:"music_mood"`
	BudgetUnits     float64 `json:"budget_units"`
}

func (p *VideoPayload) Kind() JobKind { return JobKindVideo }

func (p *VideoPayload) Normalize() {
	if p.AspectRatio == "" {
		p.AspectRatio = "16:9"
	}
	if p.Quality == "" {
		p.Quality = DefaultQuality
	}
	if p.Format == "" {
		p.Format = "mp4"
	}
	if p.DurationSeconds <= 0 {
		p.DurationSeconds = 15
	}
}

func (p *VideoPayload) Validate() error {
	if strings.TrimSpace(p.Brief) == "" {
		return fmt.Errorf("%w: brief is required", ErrInvalidPayload)
	}
	if p.DurationSeconds > MaxVideoDurationSeconds {
		return fmt.Errorf("%w: duration exceeds %ds", ErrInvalidPayload, MaxVideoDurationSeconds)
	}
	if _, ok := allowedAspectRatios[p.AspectRatio]; !ok {
		return fmt.Errorf("%w: unsupported aspect ratio %q", ErrInvalidPayload, p.AspectRatio)
	}
	if _, ok := allowedQualities[p.Quality]; !ok {
		return fmt.Errorf("%w: unsupported quality %q", ErrInvalidPayload, p.Quality)
	}
	return nil
}

func (p *VideoPayload) Document() map[string]any {
	return map[string]any{
		"brief":            p.Brief,
		"format":           p.Format,
		"aspect_ratio":     p.AspectRatio,
		"duration_seconds": p.DurationSeconds,
		"quality":          p.Quality,
		"voiceover":        p.Voiceover,
		"voiceover_script": p.VoiceoverScript,
		"music":            p.Music,
		"music_mood":       p.MusicMood,
		"budget_units":     p.BudgetUnits,
	}
}

// ParsePayload decodes and validates the raw request payload for a kind.
// Unknown fields are rejected so semantically equal requests cannot smuggle
// extra data past the fingerprint.
func ParsePayload(kind JobKind, raw json.RawMessage) (Payload, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	var payload Payload
	switch kind {
	case JobKindImage:
		payload = &ImagePayload{}
	case JobKindCarousel:
		payload = &CarouselPayload{}
	case JobKindVideo:
		payload = &VideoPayload{}
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	payload.Normalize()
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

func stringsToAny(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}
