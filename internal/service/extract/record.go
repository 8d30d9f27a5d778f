// Package extract pulls a structured emergency record out of free-text
// assistant replies.
package extract

import "strings"

// DefaultCallerMessage is spoken when a parsed record has no output text.
const DefaultCallerMessage = "Help request noted."

// Record is an emergency record parsed from one reply. Treat it as
// immutable; WithCaller returns a tagged copy.
type Record struct {
	Location  *string
	Emergency *string
	Output    string
	Raw       map[string]any
	CallerID  string
}

// Extract parses text into a Record. It reports false when no tier matched.
func Extract(text string) (*Record, bool) {
	rec, tier := ExtractTier(text)
	return rec, tier != TierNone
}

// ExtractTier is Extract that also reports which tier matched.
func ExtractTier(text string) (*Record, Tier) {
	raw, tier := Parse(text)
	if tier == TierNone {
		return nil, TierNone
	}
	return &Record{
		Location:  optionalString(raw, "location"),
		Emergency: optionalString(raw, "emergency"),
		Output:    stringValue(raw, "output"),
		Raw:       raw,
	}, tier
}

// WithCaller returns a copy of r tagged with the caller identifier.
func (r Record) WithCaller(callerID string) *Record {
	r.CallerID = callerID
	return &r
}

// Persistable reports whether the record carries a location or emergency.
func (r *Record) Persistable() bool {
	return nonEmpty(r.Location) || nonEmpty(r.Emergency)
}

// CallerMessage returns the output text, or def when it is empty.
func (r *Record) CallerMessage(def string) string {
	if strings.TrimSpace(r.Output) == "" {
		return def
	}
	return r.Output
}

// Row builds the storage row. Absent values are omitted, and the raw
// structure is included only when includeRaw is set.
func (r *Record) Row(includeRaw bool) map[string]any {
	row := make(map[string]any, 4)
	if r.Location != nil {
		row["location"] = *r.Location
	}
	if r.Emergency != nil {
		row["emergency"] = *r.Emergency
	}
	if r.CallerID != "" {
		row["mobile_no"] = r.CallerID
	}
	if includeRaw && r.Raw != nil {
		row["model_response"] = r.Raw
	}
	return row
}

// CallerFacingMessage picks the text to speak for a reply: the record's
// output when parsing succeeded, otherwise the reply itself.
func CallerFacingMessage(reply string, rec *Record, ok bool) string {
	if !ok || rec == nil {
		return reply
	}
	return rec.CallerMessage(DefaultCallerMessage)
}

func optionalString(m map[string]any, key string) *string {
	s, ok := m[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
