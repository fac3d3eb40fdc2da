package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tracked action types and their scoring weights. Unknown actions fall
// back to the view weight.
const (
	ActionView         = "view"
	ActionSearch       = "search"
	ActionAlertSet     = "alert_set"
	ActionWatchlistAdd = "watchlist_add"
	ActionTrade        = "trade"
)

var ActionWeights = map[string]int{
	ActionView:         1,
	ActionSearch:       3,
	ActionAlertSet:     5,
	ActionWatchlistAdd: 8,
	ActionTrade:        10,
}

// ActionWeight returns the scoring weight for an action type.
func ActionWeight(action string) int {
	if w, ok := ActionWeights[action]; ok {
		return w
	}
	return 1
}

// ActivityEvent is one raw tracked interaction. Append-only: rows are
// never mutated and are removed only by explicit erasure.
type ActivityEvent struct {
	EventBucket int       `json:"-" db:"event_bucket"`
	EventID     string    `json:"event_id" db:"event_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Symbol      string    `json:"symbol" db:"symbol"`
	AssetType   string    `json:"asset_type" db:"asset_type"`
	ActionType  string    `json:"action_type" db:"action_type"`
	Metadata    Metadata  `json:"metadata" db:"metadata"`
	OccurredAt  time.Time `json:"occurred_at" db:"occurred_at"`
}

// MetaKind tags the concrete type held by a MetaValue.
type MetaKind int

const (
	MetaString MetaKind = iota
	MetaNumber
	MetaBool
)

// MetaValue is one entry of the schema-less event metadata bag: a string,
// a number, or a bool. Anything richer is rejected at decode time.
type MetaValue struct {
	Kind MetaKind
	Str  string
	Num  float64
	Bool bool
}

// Metadata is the typed key/value bag attached to activity events.
type Metadata map[string]MetaValue

func MetaStr(s string) MetaValue  { return MetaValue{Kind: MetaString, Str: s} }
func MetaNum(n float64) MetaValue { return MetaValue{Kind: MetaNumber, Num: n} }
func MetaFlag(b bool) MetaValue   { return MetaValue{Kind: MetaBool, Bool: b} }

// Number returns the numeric value for key, if present and numeric.
func (m Metadata) Number(key string) (float64, bool) {
	v, ok := m[key]
	if !ok || v.Kind != MetaNumber {
		return 0, false
	}
	return v.Num, true
}

// String returns the string value for key, if present and a string.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v.Kind != MetaString {
		return "", false
	}
	return v.Str, true
}

func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case MetaNumber:
		return json.Marshal(v.Num)
	case MetaBool:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Str)
	}
}

func (v *MetaValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = MetaStr(t)
	case float64:
		*v = MetaNum(t)
	case bool:
		*v = MetaFlag(t)
	case nil:
		*v = MetaStr("")
	default:
		return fmt.Errorf("unsupported metadata value type %T", raw)
	}
	return nil
}
