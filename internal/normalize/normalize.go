// Package normalize turns raw helpdesk entities into flat output records.
//
// Every key of an entity is passed through an ordered rule table; the
// first rule whose predicate matches transforms the key and value. Keys
// no rule claims are copied unchanged.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nhle/helpdesk-sync/internal/crossref"
	"github.com/nhle/helpdesk-sync/internal/model"
)

// Bucket output keys.
const (
	ResolutionRangeKey = "full_resolution_time_range"
	ReplyRangeKey      = "first_reply_time_range"
	TimeSpentRangeKey  = "time_spent_range"
)

// Duration fields matched by exact name.
const (
	fullResolutionKey = "full_resolution_time_in_minutes"
	firstReplyKey     = "first_reply_time_in_minutes"
)

// customFieldMaps are nested mappings flattened into their parent without
// a prefix.
var customFieldMaps = []string{"user_fields", "organization_fields"}

// timestampLayouts are tried in order when reformatting *_at values.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05 -0700",
	"2006-01-02",
}

// rule is one predicate/transform pair of the normalization table.
type rule struct {
	name  string
	match func(n *Normalizer, typ model.RecordType, key string) bool
	apply func(n *Normalizer, rec *model.Record, key string, value any) error
}

// rules is evaluated top to bottom; the first match wins.
var rules = []rule{
	{name: "duration", match: (*Normalizer).isDuration, apply: (*Normalizer).applyDuration},
	{name: "custom_field", match: isCustomField, apply: (*Normalizer).applyCustomField},
	{name: "integer", match: isInteger, apply: applyInteger},
	{name: "timestamp", match: isTimestamp, apply: applyTimestamp},
	{name: "organization_name", match: isTicketOrgName, apply: (*Normalizer).applyOrgName},
}

// Normalizer builds records from raw entities using one cycle's lookup
// tables.
type Normalizer struct {
	tables         *crossref.Tables
	timeSpentLabel string
}

// New returns a Normalizer reading from tables. An empty timeSpentLabel
// selects model.DefaultTimeSpentLabel.
func New(tables *crossref.Tables, timeSpentLabel string) *Normalizer {
	if timeSpentLabel == "" {
		timeSpentLabel = model.DefaultTimeSpentLabel
	}
	return &Normalizer{tables: tables, timeSpentLabel: timeSpentLabel}
}

// Flatten merges custom field sub-mappings into the parent and flattens
// any other nested mapping into dotted keys. Keys already present in the
// parent win over custom field keys of the same name.
func Flatten(attrs model.Attributes) model.Attributes {
	out := make(model.Attributes, len(attrs))

	for k, v := range attrs {
		if isCustomFieldMap(k) {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, k, nested)
			continue
		}
		out[k] = v
	}

	for _, mapKey := range customFieldMaps {
		nested, ok := attrs[mapKey].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range nested {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}

	return out
}

func isCustomFieldMap(key string) bool {
	for _, k := range customFieldMaps {
		if k == key {
			return true
		}
	}
	return false
}

func flattenInto(out model.Attributes, prefix string, nested map[string]any) {
	for k, v := range nested {
		key := prefix + "." + k
		if inner, ok := v.(map[string]any); ok {
			flattenInto(out, key, inner)
			continue
		}
		out[key] = v
	}
}

// Entity normalizes a raw entity of the given type. The entity's own
// "type" attribute, if any, is kept as "<record type>_type".
func (n *Normalizer) Entity(typ model.RecordType, attrs model.Attributes) (*model.Record, error) {
	id, ok := attrs.Int64("id")
	if !ok {
		return nil, fmt.Errorf("%s without a numeric id", typ)
	}

	rec := model.NewRecord(typ, id)
	flat := Flatten(attrs)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := flat[key]
		switch key {
		case "id":
			continue
		case "type":
			rec.Set(string(typ)+"_type", value)
			continue
		}

		if err := n.applyRules(typ, rec, key, value); err != nil {
			return nil, fmt.Errorf("normalizing %s %d: %w", typ, id, err)
		}
	}

	return rec, nil
}

func (n *Normalizer) applyRules(typ model.RecordType, rec *model.Record, key string, value any) error {
	for _, r := range rules {
		if r.match(n, typ, key) {
			if err := r.apply(n, rec, key, value); err != nil {
				return fmt.Errorf("rule %s on %q: %w", r.name, key, err)
			}
			return nil
		}
	}
	rec.Set(key, value)
	return nil
}

func (n *Normalizer) isDuration(_ model.RecordType, key string) bool {
	if key == fullResolutionKey || key == firstReplyKey {
		return true
	}
	if !crossref.IsCustomField(key) {
		return false
	}
	label, ok := n.tables.FieldName(key)
	return ok && label == n.timeSpentLabel
}

func (n *Normalizer) applyDuration(rec *model.Record, key string, value any) error {
	var (
		outKey   string
		rangeKey string
		label    string
	)

	switch key {
	case fullResolutionKey:
		outKey, rangeKey, label = key, ResolutionRangeKey, ResolutionBucket(value)
	case firstReplyKey:
		outKey, rangeKey, label = key, ReplyRangeKey, ReplyBucket(value)
	default:
		outKey, rangeKey, label = n.timeSpentLabel, TimeSpentRangeKey, TimeSpentBucket(value)
	}

	if v, ok := model.ToInt64(value); ok {
		rec.Set(outKey, v)
	} else {
		rec.Set(outKey, nil)
	}
	rec.Set(rangeKey, label)
	return nil
}

func isCustomField(_ *Normalizer, _ model.RecordType, key string) bool {
	return crossref.IsCustomField(key)
}

func (n *Normalizer) applyCustomField(rec *model.Record, key string, value any) error {
	if label, ok := n.tables.FieldName(key); ok && label != "" {
		rec.Set(label, value)
		return nil
	}
	rec.Set(key, value)
	return nil
}

func isInteger(_ *Normalizer, _ model.RecordType, key string) bool {
	return strings.HasSuffix(key, "_minutes") || strings.HasSuffix(key, "_id")
}

// applyInteger coerces to an integer. Absent and empty values become null;
// values that are present but not numeric (string external ids, for
// instance) pass through.
func applyInteger(_ *Normalizer, rec *model.Record, key string, value any) error {
	if value == nil {
		rec.Set(key, nil)
		return nil
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		rec.Set(key, nil)
		return nil
	}
	if v, ok := model.ToInt64(value); ok {
		rec.Set(key, v)
		return nil
	}
	rec.Set(key, value)
	return nil
}

func isTimestamp(_ *Normalizer, _ model.RecordType, key string) bool {
	return strings.HasSuffix(key, "_at")
}

func applyTimestamp(_ *Normalizer, rec *model.Record, key string, value any) error {
	ts, err := Timestamp(value)
	if err != nil {
		return err
	}
	if ts == "" {
		rec.Set(key, nil)
		return nil
	}
	rec.Set(key, ts)
	return nil
}

// Timestamp reformats a raw timestamp value as RFC 3339 in UTC. Null and
// empty values return "". Numbers are read as Unix seconds.
func Timestamp(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", nil
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339), nil
			}
		}
		return "", fmt.Errorf("unrecognized timestamp %q", s)
	case json.Number, float64, int64, int:
		secs, ok := model.ToInt64(v)
		if !ok {
			return "", fmt.Errorf("unrecognized timestamp %v", v)
		}
		return time.Unix(secs, 0).UTC().Format(time.RFC3339), nil
	default:
		return "", fmt.Errorf("unrecognized timestamp of type %T", value)
	}
}

func isTicketOrgName(_ *Normalizer, typ model.RecordType, key string) bool {
	return typ == model.RecordTypeTicket && key == "organization_name"
}

// applyOrgName keeps the name and attaches the matching organization id.
// The incremental export carries the organization's name where other
// endpoints carry its id.
func (n *Normalizer) applyOrgName(rec *model.Record, key string, value any) error {
	rec.Set(key, value)
	name, _ := value.(string)
	if id, ok := n.tables.OrganizationIDByName(name); ok {
		rec.Set("org_id", id)
	}
	return nil
}
