// Package parser turns raw source records into domain messages.
//
// Parsing is a pure function of the raw record. Required scalar fields are
// always assigned (absent values become the type default, except send_at and
// sent_at, which must be present); optional and enum
// fields are assigned only when the source value is truthy, so an empty
// string, zero or null never overwrites a column default. Records that cannot
// be represented are rejected with a *RejectionError instead of being coerced.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jeraldrich/sql-transformer/internal/domain"
	"github.com/jeraldrich/sql-transformer/internal/source"
)

// Source keys that are not Message columns but drive reference resolution.
const (
	KeyFromUserID    = "from_user_id"
	KeyToUserID      = "to_user_id"
	KeySenderUserID  = "sender_user_id"
	KeyChannelID     = "channel_id"
	KeyCorrelationID = "correlation_id"
	KeyBody          = "body"
)

const maxShortText = 255

// ErrRejected is wrapped by every *RejectionError.
var ErrRejected = errors.New("record rejected")

// RejectionError explains why a raw record was dropped. For an unrecognized
// type, Field is "type" and Value holds the offending type string.
type RejectionError struct {
	ID     string
	Field  string
	Value  any
	Reason string
}

func (e *RejectionError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("record %s rejected: %s %v: %s", e.ID, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("record rejected: %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *RejectionError) Unwrap() error { return ErrRejected }

// References are the identifiers of entities a message points at, plus its
// body text. Optional references are empty when the source omits them.
type References struct {
	FromUserID    string
	ToUserID      string
	SenderUserID  string
	ChannelID     string
	CorrelationID string
	Body          string
}

// Parsed pairs a message with the references needed to persist it and the
// raw record it came from.
type Parsed struct {
	Message *domain.Message
	Refs    References
	Raw     source.RawRecord
}

// Parse validates raw and maps it onto a domain.Message.
func Parse(raw source.RawRecord) (*Parsed, error) {
	if raw == nil {
		return nil, &RejectionError{Field: "record", Reason: "not an object"}
	}

	p := &recordParser{raw: raw}

	// Type first: an unknown category is the common rejection and carries
	// the offending string back to the caller.
	typeStr, _ := raw["type"].(string)
	msgType, err := domain.ParseMessageType(typeStr)
	if err != nil {
		return nil, &RejectionError{ID: p.idHint(), Field: "type", Value: raw["type"], Reason: "unrecognized message type"}
	}

	m := &domain.Message{Type: msgType, State: domain.MessageStateNew}
	m.ID = p.requiredUUID("id")

	// Required scalars.
	if t := p.optionalTime("created_at"); t != nil {
		m.CreatedAt = *t
	}
	m.SendAt = p.requiredTime("send_at")
	m.SentAt = p.requiredTime("sent_at")
	m.SentAutomatically = p.boolean("sent_automatically")
	m.IsFlagged = p.boolean("is_flagged")
	m.Tag = p.shortText("tag")
	m.URLs = p.shortText("urls")
	m.ViewedDuration = p.nonNegativeInt("viewed_duration")
	m.Duration = p.nonNegativeInt("duration")
	m.NotificationCount = p.nonNegativeInt("notification_count")
	m.Attributes = p.attributes("attributes")

	// Sparse overlay: optional and enum fields only when truthy.
	if s, ok := p.truthyString("state"); ok {
		st, err := domain.ParseMessageState(s)
		p.enumErr("state", s, err)
		m.State = st
	}
	if s, ok := p.truthyString("sub_type"); ok {
		st, err := domain.ParseMessageSubType(s)
		p.enumErr("sub_type", s, err)
		m.SubType = &st
	}
	if s, ok := p.truthyString("delivery_type"); ok {
		dt, err := domain.ParseDeliveryType(s)
		p.enumErr("delivery_type", s, err)
		m.DeliveryType = &dt
	}
	m.UpdatedAt = p.optionalTime("updated_at")
	m.ReadAt = p.optionalTime("read_at")
	m.CanceledAt = p.optionalTime("canceled_at")
	m.DeletedAt = p.optionalTime("deleted_at")
	m.ActedOnAt = p.optionalTime("acted_on_at")
	m.ViewedAt = p.optionalTime("viewed_at")
	m.PausedAt = p.optionalTime("paused_at")
	m.SlackTS = p.opaque("slack_ts")

	var assocType domain.AssociatedType
	if s, ok := p.truthyString("associated_type"); ok {
		at, err := domain.ParseAssociatedType(s)
		p.enumErr("associated_type", s, err)
		assocType = at
	}
	assocID := p.optionalUUID("associated_id")
	if assocType != "" && assocID != "" && p.err == nil {
		a, err := domain.NewAssociation(assocType, assocID)
		if err != nil {
			p.reject("associated_type", assocType, err.Error())
		}
		m.SetAssociation(a)
	}

	refs := References{
		FromUserID:    p.requiredUUID(KeyFromUserID),
		ToUserID:      p.requiredUUID(KeyToUserID),
		SenderUserID:  p.optionalUUID(KeySenderUserID),
		ChannelID:     p.optionalUUID(KeyChannelID),
		CorrelationID: p.optionalUUID(KeyCorrelationID),
		Body:          p.text(KeyBody),
	}

	if p.err != nil {
		return nil, p.err
	}
	m.FromUserID = refs.FromUserID
	m.ToUserID = refs.ToUserID
	m.SenderUserID = optional(refs.SenderUserID)
	m.ChannelID = optional(refs.ChannelID)
	m.CorrelationID = optional(refs.CorrelationID)

	return &Parsed{Message: m, Refs: refs, Raw: raw}, nil
}

// recordParser accumulates the first rejection; later field helpers become
// no-ops once err is set.
type recordParser struct {
	raw source.RawRecord
	err *RejectionError
}

func (p *recordParser) reject(field string, value any, reason string) {
	if p.err == nil {
		p.err = &RejectionError{ID: p.idHint(), Field: field, Value: value, Reason: reason}
	}
}

func (p *recordParser) enumErr(field, value string, err error) {
	if err != nil {
		p.reject(field, value, "not a declared member")
	}
}

func (p *recordParser) idHint() string {
	s, _ := p.raw["id"].(string)
	return s
}

func (p *recordParser) requiredUUID(key string) string {
	v, ok := p.truthyString(key)
	if !ok {
		p.reject(key, p.raw[key], "required identifier missing")
		return ""
	}
	id, err := uuid.Parse(v)
	if err != nil {
		p.reject(key, v, "not a UUID")
		return ""
	}
	return id.String()
}

func (p *recordParser) optionalUUID(key string) string {
	v, ok := p.truthyString(key)
	if !ok {
		return ""
	}
	id, err := uuid.Parse(v)
	if err != nil {
		p.reject(key, v, "not a UUID")
		return ""
	}
	return id.String()
}

// truthyString returns the string value of key when it is a non-empty string.
// Non-string truthy values are rejected.
func (p *recordParser) truthyString(key string) (string, bool) {
	v := p.raw[key]
	if !truthy(v) {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		p.reject(key, v, "expected a string")
		return "", false
	}
	return s, true
}

func (p *recordParser) optionalTime(key string) *time.Time {
	s, ok := p.truthyString(key)
	if !ok {
		return nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		p.reject(key, s, "unparseable timestamp")
		return nil
	}
	return &t
}

func (p *recordParser) requiredTime(key string) time.Time {
	if !truthy(p.raw[key]) {
		p.reject(key, p.raw[key], "required timestamp missing")
		return time.Time{}
	}
	if t := p.optionalTime(key); t != nil {
		return *t
	}
	return time.Time{}
}

func (p *recordParser) boolean(key string) bool {
	switch v := p.raw[key].(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		p.reject(key, v, "expected a boolean")
		return false
	}
}

func (p *recordParser) text(key string) string {
	switch v := p.raw[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		p.reject(key, v, "expected a string")
		return ""
	}
}

func (p *recordParser) shortText(key string) string {
	s := p.text(key)
	if utf8.RuneCountInString(s) > maxShortText {
		p.reject(key, s, fmt.Sprintf("longer than %d characters", maxShortText))
		return ""
	}
	return s
}

func (p *recordParser) nonNegativeInt(key string) int {
	v := p.raw[key]
	if v == nil {
		return 0
	}
	f, ok := number(v)
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 {
		p.reject(key, v, "expected an integer")
		return 0
	}
	if f < 0 {
		p.reject(key, v, "must not be negative")
		return 0
	}
	return int(f)
}

func (p *recordParser) attributes(key string) domain.Attributes {
	switch v := p.raw[key].(type) {
	case nil:
		return nil
	case map[string]any:
		return domain.Attributes(v)
	default:
		p.reject(key, v, "expected an object")
		return nil
	}
}

// opaque keeps a truthy value as text without interpretation.
func (p *recordParser) opaque(key string) *string {
	v := p.raw[key]
	if !truthy(v) {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		p.reject(key, v, "expected a string or number")
		return nil
	}
	if utf8.RuneCountInString(s) > maxShortText {
		p.reject(key, s, fmt.Sprintf("longer than %d characters", maxShortText))
		return nil
	}
	return &s
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// truthy mirrors the source system's notion of a meaningful value.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number, float64, int, int64:
		f, ok := number(t)
		return !ok || f != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the zone-less forms the sources emit.
// Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
