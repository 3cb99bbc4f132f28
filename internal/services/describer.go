package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/platform/openai"
)

// EventDescriber turns a raw interaction into a one-line description. It
// never fails: model errors fall back to FallbackDescription.
type EventDescriber interface {
	Describe(ctx context.Context, event domain.UserEvent) string
}

type eventDescriber struct {
	log *logger.Logger
	ai  openai.Client
}

func NewEventDescriber(log *logger.Logger, ai openai.Client) EventDescriber {
	return &eventDescriber{
		log: log.With("service", "EventDescriber"),
		ai:  ai,
	}
}

// FallbackDescription is used whenever the model cannot describe an event.
func FallbackDescription(event domain.UserEvent) string {
	return fmt.Sprintf("User %s event at %s", event.EventType, event.Time().Format("2006-01-02T15:04:05.000Z"))
}

func (d *eventDescriber) Describe(ctx context.Context, event domain.UserEvent) string {
	if d.ai == nil {
		return FallbackDescription(event)
	}
	data := strings.TrimSpace(string(event.EventData))
	if data == "" {
		data = "null"
	}
	user := strings.Join([]string{
		"Convert this user interaction event into a short human-readable description:",
		"Event type: " + string(event.EventType),
		"Event data: " + data,
		"",
		"Format: Return ONLY a brief, 1-line description of what the user did.",
	}, "\n")

	start := time.Now()
	text, err := d.ai.GenerateText(ctx, "You describe user interface interactions in one line.", user)
	if err != nil {
		d.log.Warn("Event description failed; using fallback", "event_type", event.EventType, "error", err)
		return FallbackDescription(event)
	}
	desc := firstLine(text)
	if desc == "" {
		d.log.Warn("Event description was empty; using fallback", "event_type", event.EventType)
		return FallbackDescription(event)
	}
	d.log.Debug("Described event", "event_type", event.EventType, "duration", time.Since(start).String())
	return desc
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return strings.Trim(s, `"`)
}
