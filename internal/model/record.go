package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RecordType identifies the kind of helpdesk entity a record was built from.
type RecordType string

const (
	RecordTypeOrganization RecordType = "organization"
	RecordTypeUser         RecordType = "user"
	RecordTypeTicket       RecordType = "ticket"
	RecordTypeComment      RecordType = "comment"
	RecordTypeTopic        RecordType = "topic"
)

// RecordTypes lists every record type in emission order.
var RecordTypes = []RecordType{
	RecordTypeOrganization,
	RecordTypeUser,
	RecordTypeTicket,
	RecordTypeComment,
	RecordTypeTopic,
}

// Attributes is the raw key/value payload of a helpdesk entity as decoded
// from the API. Numbers are kept as json.Number so ids survive decoding
// without loss.
type Attributes map[string]any

// String returns the value at key rendered as a string, or "" when the key
// is absent or null.
func (a Attributes) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// Int64 returns the value at key as an integer. The second return value
// is false when the key is absent, null, or not numeric.
func (a Attributes) Int64(key string) (int64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	return ToInt64(v)
}

// Bool returns the value at key as a boolean, treating anything that is
// not a true bool or the string "true" as false.
func (a Attributes) Bool(key string) bool {
	switch t := a[key].(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	default:
		return false
	}
}

// Clone returns a shallow copy of the attributes.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ToInt64 coerces a decoded JSON value to an integer. Floats are
// truncated toward zero; strings must hold a base-10 integer or a float.
func ToInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case float64:
		return int64(t), true
	case float32:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

// Record is the normalized unit handed to a sink. Fields always carries
// "type" and "id" in addition to the entity's own keys.
type Record struct {
	Type   RecordType
	ID     int64
	Fields map[string]any
}

// NewRecord creates a record with the type and id keys already set.
func NewRecord(typ RecordType, id int64) *Record {
	return &Record{
		Type: typ,
		ID:   id,
		Fields: map[string]any{
			"type": string(typ),
			"id":   id,
		},
	}
}

// Set stores a field value. The type and id keys cannot be overwritten.
func (r *Record) Set(key string, value any) {
	if key == "type" || key == "id" {
		return
	}
	r.Fields[key] = value
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// Key returns the routing key "<type>/<id>" used by sinks.
func (r *Record) Key() string {
	return string(r.Type) + "/" + strconv.FormatInt(r.ID, 10)
}

// MarshalJSON encodes the flat field mapping. encoding/json sorts map keys,
// so identical records always encode to identical bytes.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields)
}

// UnmarshalJSON decodes a flat field mapping and restores Type and ID
// from the embedded keys.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	fields := make(map[string]any)
	if err := dec.Decode(&fields); err != nil {
		return err
	}

	r.Fields = fields
	if typ, ok := fields["type"].(string); ok {
		r.Type = RecordType(typ)
	}
	if id, ok := ToInt64(fields["id"]); ok {
		r.ID = id
		r.Fields["id"] = id
	}
	return nil
}
