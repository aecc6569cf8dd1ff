package discussions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ThinkingPlaceholder is the content of the typing message shown while a
// reply is pending. It is never persisted.
const ThinkingPlaceholder = "Thinking..."

// ParseRole maps raw input to a role. Anything unknown is an assistant turn.
func ParseRole(raw any) Role {
	s, _ := raw.(string)
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAssistant, RoleSystem:
		return r
	default:
		return RoleAssistant
	}
}

// Message is one chat turn.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsTyping  bool      `json:"isTyping"`
}

// IsPlaceholder reports whether m is a pending-reply marker.
func (m Message) IsPlaceholder() bool {
	return m.IsTyping || strings.TrimSpace(m.Content) == ThinkingPlaceholder
}

func (m Message) sameAs(other Message) bool {
	return m.Role == other.Role && m.Content == other.Content && !m.IsTyping && !other.IsTyping
}

// NewMessageID returns a time-ordered id with a random tie-break.
func NewMessageID(now time.Time) string {
	return fmt.Sprintf("msg_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

// NormalizeMessage builds a message from loosely typed fields as found in
// older settings files: content may be a number or bool, timestamp may be an
// RFC 3339 string, a numeric string, epoch milliseconds or a time.Time.
// ok is false when the content is empty. Normalized messages are never typing.
func NormalizeMessage(fields map[string]any, now time.Time) (Message, bool) {
	content := NormalizeContent(fields["content"])
	if strings.TrimSpace(content) == "" {
		return Message{}, false
	}
	id, _ := fields["id"].(string)
	if id == "" {
		id = NewMessageID(now)
	}
	return Message{
		ID:        id,
		Role:      ParseRole(fields["role"]),
		Content:   content,
		Timestamp: NormalizeTimestamp(fields["timestamp"], now),
	}, true
}

// NormalizeContent renders supported content values as text.
func NormalizeContent(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// NormalizeTimestamp converts raw to an instant. Numbers are epoch
// milliseconds. Unparseable input yields now.
func NormalizeTimestamp(raw any, now time.Time) time.Time {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return now
		}
		return v
	case *time.Time:
		if v == nil || v.IsZero() {
			return now
		}
		return *v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return fromMillis(f, now)
		}
	case float64:
		return fromMillis(v, now)
	case int64:
		return fromMillis(float64(v), now)
	case int:
		return fromMillis(float64(v), now)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return now
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromMillis(f, now)
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return now
}

func fromMillis(ms float64, now time.Time) time.Time {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 {
		return now
	}
	return time.UnixMilli(int64(ms)).UTC()
}

// UnmarshalJSON accepts the loose shapes understood by NormalizeMessage.
// Empty content decodes to a zero message, which callers drop.
func (m *Message) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	msg, ok := NormalizeMessage(fields, time.Now())
	if !ok {
		*m = Message{}
		return nil
	}
	*m = msg
	return nil
}

// normalizeHistory re-normalizes timestamps and drops placeholders and empty
// messages.
func normalizeHistory(history []Message, now time.Time) []Message {
	out := make([]Message, 0, len(history))
	for _, m := range history {
		if m.IsPlaceholder() || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		m.Timestamp = m.Timestamp.UTC().Round(time.Millisecond)
		if m.ID == "" {
			m.ID = NewMessageID(now)
		}
		m.Role = ParseRole(string(m.Role))
		m.IsTyping = false
		out = append(out, m)
	}
	return out
}
