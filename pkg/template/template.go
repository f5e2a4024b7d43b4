package template

import (
	"encoding/json"
	"fmt"

	"github.com/loykin/routeplay/internal/timeline"
)

// TemplateType represents the type of timeline template to generate
type TemplateType string

const (
	TypeSingle    TemplateType = "single"
	TypeSimple    TemplateType = "simple"
	TypeRelay     TemplateType = "relay"
	TypeSequence  TemplateType = "sequence"
	TypeParallel  TemplateType = "parallel"
	TypeFanout    TemplateType = "fanout"
	TypeCaptioned TemplateType = "captioned"
	TypeTour      TemplateType = "tour"
)

var palette = []string{"#e63946", "#457b9d", "#2a9d8f", "#f4a261"}

// Generator provides template generation functionality
type Generator struct {
	// Legs is the number of subjects in relay and parallel templates (default 3).
	Legs int
	// LegMS is the drawing time of one line in milliseconds (default 1500).
	LegMS int64
}

// NewGenerator creates a new template generator
func NewGenerator() *Generator {
	return &Generator{Legs: 3, LegMS: 1500}
}

// Generate builds a starter document whose subjects are prefixed with name.
func (g *Generator) Generate(templateType TemplateType, name string) (*timeline.Document, error) {
	legs, leg := g.Legs, g.LegMS
	if legs <= 0 {
		legs = 3
	}
	if leg <= 0 {
		leg = 1500
	}
	switch templateType {
	case TypeSingle, TypeSimple:
		return g.single(name, leg), nil
	case TypeRelay, TypeSequence:
		return g.relay(name, legs, leg, false), nil
	case TypeParallel, TypeFanout:
		return g.parallel(name, legs, leg), nil
	case TypeCaptioned, TypeTour:
		return g.relay(name, legs, leg, true), nil
	default:
		return nil, fmt.Errorf("unknown template type: %s (supported: single, relay, parallel, captioned)", templateType)
	}
}

// GenerateJSON creates a JSON representation of the template
func (g *Generator) GenerateJSON(templateType TemplateType, name string) ([]byte, error) {
	doc, err := g.Generate(templateType, name)
	if err != nil {
		return nil, err
	}
	jsonData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return jsonData, nil
}

// GetSupportedTypes returns a list of all supported template types
func (g *Generator) GetSupportedTypes() []string {
	return []string{
		string(TypeSingle),
		string(TypeRelay),
		string(TypeParallel),
		string(TypeCaptioned),
	}
}

func subject(name string, i int) string { return fmt.Sprintf("%s-%d", name, i+1) }

// line appends start, ripple and complete events for one subject.
func line(evs []timeline.DocumentEvent, subj, color string, start, dur int64) []timeline.DocumentEvent {
	return append(evs,
		timeline.DocumentEvent{ID: subj + "-start", Kind: string(timeline.KindLineStart), Subject: subj, TimestampMS: start, DurationMS: dur, Color: color},
		timeline.DocumentEvent{ID: subj + "-done", Kind: string(timeline.KindLineComplete), Subject: subj, TimestampMS: start + dur},
		timeline.DocumentEvent{ID: subj + "-ripple", Kind: string(timeline.KindRipple), Subject: subj, TimestampMS: start + dur},
	)
}

func (g *Generator) single(name string, leg int64) *timeline.Document {
	return &timeline.Document{
		TotalDurationMS: leg + 500,
		Color:           palette[0],
		Events:          line(nil, subject(name, 0), "", 0, leg),
	}
}

func (g *Generator) relay(name string, legs int, leg int64, captions bool) *timeline.Document {
	var evs []timeline.DocumentEvent
	for i := 0; i < legs; i++ {
		start := int64(i) * leg
		subj := subject(name, i)
		if captions {
			evs = append(evs, timeline.DocumentEvent{
				ID:          fmt.Sprintf("caption-%d", i+1),
				Kind:        string(timeline.KindCaption),
				TimestampMS: start,
				Text:        fmt.Sprintf("%s: leg %d of %d", name, i+1, legs),
			})
		}
		evs = line(evs, subj, palette[i%len(palette)], start, leg)
	}
	return &timeline.Document{TotalDurationMS: int64(legs)*leg + 500, Events: evs}
}

func (g *Generator) parallel(name string, legs int, leg int64) *timeline.Document {
	const stagger = 300
	var evs []timeline.DocumentEvent
	for i := 0; i < legs; i++ {
		evs = line(evs, subject(name, i), palette[i%len(palette)], int64(i)*stagger, leg)
	}
	return &timeline.Document{TotalDurationMS: int64(legs-1)*stagger + leg, Events: evs}
}
