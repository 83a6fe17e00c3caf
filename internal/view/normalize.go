package view

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"

	"github.com/ofertalabs/waboard/internal/domain"
	"github.com/ofertalabs/waboard/internal/hub"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CreatedEvent is the normalized form of a conversationCreated payload.
// Events arrive in two shapes: a record already carrying context/createdAt/
// initiatedBy fields, or a legacy nested WhatsApp webhook envelope under
// "json". Normalization happens once here; downstream code only sees this.
type CreatedEvent struct {
	ID          int64
	State       string
	InitiatedBy string
	Content     string
	CreatedAt   string
	From        string
}

type createdRecord struct {
	ID          interface{} `mapstructure:"id"`
	State       string      `mapstructure:"state"`
	InitiatedBy string      `mapstructure:"initiatedBy"`
	Context     interface{} `mapstructure:"context"`
	CreatedAt   interface{} `mapstructure:"createdAt"`
	From        string      `mapstructure:"from"`
	Json        interface{} `mapstructure:"json"`
}

// webhook envelope fragments, only the fields the dashboard reads
type waMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Button *struct {
		Text string `json:"text"`
	} `json:"button"`
}

type waEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []waMessage `json:"messages"`
				Contacts []struct {
					WaID string `json:"wa_id"`
				} `json:"contacts"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// NormalizeCreated extracts a CreatedEvent from whichever payload shape is
// present, falling back to a synthetic placeholder stamped with the arrival
// time. It returns false only when the payload carries no usable id.
func NormalizeCreated(p hub.Payload, now time.Time) (CreatedEvent, bool) {
	var rec createdRecord
	if err := mapstructure.Decode(map[string]interface{}(p), &rec); err != nil {
		return CreatedEvent{}, false
	}
	id := cast.ToInt64(rec.ID)
	if id == 0 {
		return CreatedEvent{}, false
	}

	ev := CreatedEvent{
		ID:          id,
		State:       rec.State,
		InitiatedBy: rec.InitiatedBy,
		From:        rec.From,
		CreatedAt:   normalizeTimestamp(rec.CreatedAt, now),
	}

	switch {
	case rec.Context != nil || rec.CreatedAt != nil:
		// already-shaped record
		ev.Content = ParseContextText(cast.ToString(rec.Context))
		if ev.InitiatedBy == "" {
			ev.InitiatedBy = domain.InitiatedBySystem
		}
	case rec.Json != nil:
		// legacy webhook envelope
		fillFromEnvelope(&ev, rec.Json, now)
	default:
		ev.Content = "[mensagem]"
		if ev.InitiatedBy == "" {
			ev.InitiatedBy = domain.InitiatedByClient
		}
	}
	if ev.State == "" {
		ev.State = string(domain.StateInitial)
	}
	return ev, true
}

func fillFromEnvelope(ev *CreatedEvent, raw interface{}, now time.Time) {
	data, err := marshalEnvelope(raw)
	if err != nil {
		ev.Content = "[mensagem]"
		return
	}
	var env waEnvelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Entry) == 0 || len(env.Entry[0].Changes) == 0 {
		ev.Content = "[mensagem]"
		return
	}
	value := env.Entry[0].Changes[0].Value
	if len(value.Contacts) > 0 && ev.From == "" {
		ev.From = value.Contacts[0].WaID
	}
	if len(value.Messages) == 0 {
		ev.Content = "[mensagem]"
		return
	}
	msg := value.Messages[0]
	switch {
	case msg.Text != nil && strings.TrimSpace(msg.Text.Body) != "":
		ev.Content = msg.Text.Body
	case msg.Type == "button" && msg.Button != nil && msg.Button.Text != "":
		ev.Content = msg.Button.Text
	case msg.Type != "":
		ev.Content = "[" + msg.Type + "]"
	default:
		ev.Content = "[mensagem]"
	}
	if msg.From != "" && ev.From == "" {
		ev.From = msg.From
	}
	if msg.Timestamp != "" {
		ev.CreatedAt = normalizeTimestamp(msg.Timestamp, now)
	}
	if ev.InitiatedBy == "" {
		ev.InitiatedBy = domain.InitiatedByClient
	}
}

func marshalEnvelope(raw interface{}) ([]byte, error) {
	if s, ok := raw.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(raw)
}

// normalizeTimestamp renders any timestamp representation as RFC3339. Numeric
// values are unix seconds; strings go through a tolerant parse. Unparseable
// input falls back to the arrival time.
func normalizeTimestamp(v interface{}, now time.Time) string {
	switch t := v.(type) {
	case nil:
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64, int, int64:
		return time.Unix(cast.ToInt64(t), 0).UTC().Format(time.RFC3339)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			break
		}
		if secs := cast.ToInt64(s); secs > 0 && !strings.Contains(s, "-") && !strings.Contains(s, ":") {
			return time.Unix(secs, 0).UTC().Format(time.RFC3339)
		}
		if parsed, err := dateparse.ParseAny(s); err == nil {
			return parsed.UTC().Format(time.RFC3339)
		}
		return s
	}
	return now.UTC().Format(time.RFC3339)
}

// context envelope fragments used by ParseContextText
type contextComponent struct {
	Type    string `json:"Type"`
	SubType string `json:"SubType"`
	Text    string `json:"Text"`
}

type contextEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []waMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
	Messages   []waMessage        `json:"messages"`
	Components []contextComponent `json:"Components"`
}

// ParseContextText recovers the display text from a conversation context
// blob, which may be plain text, a webhook envelope, a simplified
// {messages:[...]} wrapper or an HSM component list.
func ParseContextText(context string) string {
	raw := strings.TrimSpace(context)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "{") {
		return raw
	}
	var env contextEnvelope
	if err := json.UnmarshalFromString(raw, &env); err != nil {
		return raw
	}
	var msg *waMessage
	if len(env.Entry) > 0 && len(env.Entry[0].Changes) > 0 && len(env.Entry[0].Changes[0].Value.Messages) > 0 {
		msg = &env.Entry[0].Changes[0].Value.Messages[0]
	} else if len(env.Messages) > 0 {
		msg = &env.Messages[0]
	}
	if msg != nil {
		if msg.Text != nil && strings.TrimSpace(msg.Text.Body) != "" {
			return msg.Text.Body
		}
		if msg.Type == "button" && msg.Button != nil && msg.Button.Text != "" {
			return msg.Button.Text
		}
		if msg.Type != "" {
			return "[" + msg.Type + "]"
		}
	}
	for _, comp := range env.Components {
		if strings.EqualFold(comp.Type, "body") && comp.Text != "" {
			return comp.Text
		}
	}
	return raw
}

// ParseContextButtons lists the quick-reply button labels in an HSM context.
func ParseContextButtons(context string) []string {
	raw := strings.TrimSpace(context)
	if !strings.HasPrefix(raw, "{") {
		return nil
	}
	var env contextEnvelope
	if err := json.UnmarshalFromString(raw, &env); err != nil {
		return nil
	}
	var buttons []string
	for _, comp := range env.Components {
		if strings.EqualFold(comp.SubType, "QUICK_REPLY") && comp.Text != "" {
			buttons = append(buttons, comp.Text)
		}
	}
	return buttons
}

// SamePhone compares two phone identities digit by digit, ignoring
// formatting.
func SamePhone(a, b string) bool {
	return digits(a) != "" && digits(a) == digits(b)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
