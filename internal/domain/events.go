package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

type EventType string

const (
	EventClick      EventType = "click"
	EventZoom       EventType = "zoom"
	EventVoice      EventType = "voice"
	EventHover      EventType = "hover"
	EventNavigation EventType = "navigation"
)

var EventTypes = []EventType{EventClick, EventZoom, EventVoice, EventHover, EventNavigation}

func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// UserEvent is one raw interaction accepted at the ingestion boundary.
type UserEvent struct {
	UserID      string          `json:"userId" validate:"required,max=256,excludes=:"`
	EventType   EventType       `json:"eventType" validate:"required,oneof=click zoom voice hover navigation"`
	EventData   json.RawMessage `json:"eventData,omitempty"`
	Timestamp   int64           `json:"timestamp"`
	Description string          `json:"description,omitempty"`
}

// Time returns the creation timestamp as a time.Time.
func (e UserEvent) Time() time.Time { return time.UnixMilli(e.Timestamp).UTC() }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidationError lists the fields an ingested payload got wrong.
type ValidationError struct {
	Fields []string
	msg    string
}

func (e *ValidationError) Error() string { return e.msg }

// Validate checks an event before it is enqueued.
func (e UserEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return &ValidationError{Fields: []string{"userId"}, msg: "userId is required"}
	}
	err := Validator().Struct(e)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{msg: err.Error()}
	}
	out := &ValidationError{}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out.Fields = append(out.Fields, fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "excludes":
			msgs = append(msgs, fmt.Sprintf("%s must not contain %q", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s bytes", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	out.msg = strings.Join(msgs, "; ")
	return out
}

const maxUserIDLen = 256

// CheckUserID applies the UserEvent.UserID rules to an id that arrives on its
// own, such as a read query parameter. ':' separates store key segments and is
// never allowed.
func CheckUserID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("userId is required")
	case len(id) > maxUserIDLen:
		return fmt.Errorf("userId must be at most %d bytes", maxUserIDLen)
	case strings.Contains(id, ":"):
		return errors.New(`userId must not contain ":"`)
	}
	return nil
}

func NowMillis() int64 { return time.Now().UnixMilli() }
