// Package prize converts the heterogeneous prize structures returned by the
// lottery API into one canonical item list.
package prize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Reintegro encodings recognized by UnifyItem.
const (
	christmasReintegroType  = "R"
	christmasReintegroPrize = 2000
	standardReintegroType   = "1"
	standardReintegroPrize  = 600
)

const (
	fieldDecimo       = "decimo"
	fieldPrize        = "prize"
	fieldPrizeType    = "prizeType"
	fieldDisplayPrize = "displayPrize"
	fieldIsReintegro  = "isReintegro"
)

// Record is one upstream prize entry. Fields holds every upstream key
// verbatim; Decimo, Prize and PrizeType are parsed copies used to derive the
// display values.
type Record struct {
	Decimo    string
	Prize     float64
	PrizeType string

	// HasPrize is false when the upstream entry had no prize field.
	HasPrize bool

	Fields map[string]json.RawMessage
}

// UnmarshalJSON accepts decimo as string or number and prize as number or
// numeric string.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode prize record: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("decode prize record: not an object")
	}

	rec := Record{Fields: fields}
	if v, ok := fields[fieldDecimo]; ok {
		rec.Decimo = scalarString(v)
	}
	if v, ok := fields[fieldPrize]; ok {
		p, has, err := parsePrize(v)
		if err != nil {
			return fmt.Errorf("decode prize record: prize: %w", err)
		}
		rec.Prize, rec.HasPrize = p, has
	}
	if v, ok := fields[fieldPrizeType]; ok {
		rec.PrizeType = scalarString(v)
	}

	*r = rec
	return nil
}

// scalarString renders a JSON string or number as text; anything else is "".
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case 'n', 't', 'f', '{', '[':
		return ""
	default:
		return string(raw)
	}
	return ""
}

func parsePrize(raw json.RawMessage) (float64, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false, err
		}
		if text == "" {
			return 0, false, nil
		}
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false, fmt.Errorf("not a number: %s", text)
	}
	return f, true, nil
}

// Item is a Record with display values attached.
type Item struct {
	Record
	DisplayPrize int64
	IsReintegro  bool
}

// MarshalJSON emits the upstream fields unchanged followed by the derived
// ones. prizeType is rewritten only when a category default filled it in.
func (it Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(it.Fields)+3)
	for k, v := range it.Fields {
		out[k] = v
	}
	if it.PrizeType != scalarString(it.Fields[fieldPrizeType]) {
		out[fieldPrizeType] = it.PrizeType
	}
	out[fieldDisplayPrize] = it.DisplayPrize
	out[fieldIsReintegro] = it.IsReintegro
	return json.Marshal(out)
}

// UnmarshalJSON reads an item produced by MarshalJSON. Derived values
// missing from data are computed with UnifyItem.
func (it *Item) UnmarshalJSON(data []byte) error {
	var rec Record
	if err := rec.UnmarshalJSON(data); err != nil {
		return err
	}

	var derived struct {
		DisplayPrize *int64 `json:"displayPrize"`
		IsReintegro  *bool  `json:"isReintegro"`
	}
	if err := json.Unmarshal(data, &derived); err != nil {
		return fmt.Errorf("decode prize item: %w", err)
	}
	delete(rec.Fields, fieldDisplayPrize)
	delete(rec.Fields, fieldIsReintegro)

	item := UnifyItem(rec)
	if derived.DisplayPrize != nil {
		item.DisplayPrize = *derived.DisplayPrize
	}
	if derived.IsReintegro != nil {
		item.IsReintegro = *derived.IsReintegro
	}
	*it = item
	return nil
}

// UnifyItem derives the euro display value and the reintegro flag.
func UnifyItem(r Record) Item {
	item := Item{Record: r}

	switch {
	case r.PrizeType == christmasReintegroType && r.Prize == christmasReintegroPrize:
		item.DisplayPrize = 20
		item.IsReintegro = true
	case r.PrizeType == standardReintegroType && r.Prize == standardReintegroPrize:
		item.DisplayPrize = 6
		item.IsReintegro = true
	default:
		item.DisplayPrize = roundHalfUp(r.Prize / 100)
	}

	return item
}

func roundHalfUp(f float64) int64 {
	return int64(math.Floor(f + 0.5))
}
