package prize

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Sternrassler/loteria-results-proxy/pkg/apperr"
	"github.com/Sternrassler/loteria-results-proxy/pkg/logging"
	"github.com/tidwall/gjson"
)

// Category is one source of prize records inside a draw payload.
type Category struct {
	// Field is the top-level payload key.
	Field string

	// DefaultType is applied when a record has no prizeType. Empty keeps
	// the record's own type.
	DefaultType string

	// Single categories hold one object and only count when it carries a
	// ticket number.
	Single bool
}

// Categories lists every prize source in output order.
var Categories = []Category{
	{Field: "primerPremio", DefaultType: "G", Single: true},
	{Field: "segundoPremio", DefaultType: "Z", Single: true},
	{Field: "tercerosPremios", DefaultType: "T"},
	{Field: "cuartosPremios", DefaultType: "Q4"},
	{Field: "quintosPremios", DefaultType: "Q5"},
	{Field: "reintegros"},
	{Field: "extraccionesDeDosCifras", DefaultType: "2C"},
	{Field: "extraccionesDeTresCifras", DefaultType: "3C"},
	{Field: "extraccionesDeCuatroCifras", DefaultType: "4C"},
	{Field: "extraccionesDeCincoCifras", DefaultType: "5C"},
}

// Payload flags reporting a draw in progress.
const (
	FieldCelebrationState  = "estadoCelebracionLNAC"
	FieldCelebrationStatus = "statusLNACcelebration"
	fieldNormalizedItems   = "normalizedItems"
)

// DrawResult is a draw payload with its normalized prize list. It is not
// modified after NormalizeResults returns it.
type DrawResult struct {
	fields map[string]json.RawMessage
	items  []Item
	live   bool
}

// Items returns a copy of the normalized items.
func (d *DrawResult) Items() []Item {
	out := make([]Item, len(d.items))
	copy(out, d.items)
	return out
}

// Field returns a top-level field of the original payload.
func (d *DrawResult) Field(name string) (json.RawMessage, bool) {
	v, ok := d.fields[name]
	return v, ok
}

// Fields returns the sorted top-level keys of the original payload.
func (d *DrawResult) Fields() []string {
	keys := make([]string, 0, len(d.fields))
	for k := range d.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithLive returns a copy flagged as coming from a draw in progress.
func (d *DrawResult) WithLive(live bool) *DrawResult {
	cp := *d
	cp.live = live
	return &cp
}

// CelebrationInProgress reports whether the payload describes a draw being
// conducted live.
func (d *DrawResult) CelebrationInProgress() bool {
	if d == nil {
		return false
	}
	if d.live {
		return true
	}
	for _, name := range []string{FieldCelebrationState, FieldCelebrationStatus} {
		if v, ok := d.fields[name]; ok && gjson.ParseBytes(v).Type == gjson.True {
			return true
		}
	}
	return false
}

// MarshalJSON emits the original fields plus normalizedItems.
func (d *DrawResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.fields)+1)
	for k, v := range d.fields {
		out[k] = v
	}
	items := d.items
	if items == nil {
		items = []Item{}
	}
	out[fieldNormalizedItems] = items
	return json.Marshal(out)
}

// NormalizeResults builds the canonical prize list for a raw draw payload.
// Empty input and JSON null yield (nil, nil).
func NormalizeResults(ctx context.Context, raw []byte) (*DrawResult, error) {
	logger := logging.FromContext(ctx, logging.NewLogger("normalizer"))

	if len(raw) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		logger.Error().Int("bytes", len(raw)).Msg("Error normalizing results: invalid JSON")
		return nil, apperr.Internal("normalize results: invalid JSON payload",
			apperr.Context{Operation: "normalizeResults", RequestID: logging.RequestID(ctx)}, nil)
	}

	doc := gjson.ParseBytes(raw)
	if doc.Type == gjson.Null {
		return nil, nil
	}
	if !doc.IsObject() {
		logger.Error().
			Str("payload_type", doc.Type.String()).
			Msg("Error normalizing results: payload is not an object")
		return nil, apperr.Internal("normalize results: payload is not an object",
			apperr.Context{Operation: "normalizeResults", RequestID: logging.RequestID(ctx)}, nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		logger.Error().Err(err).Msg("Error normalizing results")
		return nil, apperr.Internal("normalize results",
			apperr.Context{Operation: "normalizeResults", RequestID: logging.RequestID(ctx)}, err)
	}

	result := &DrawResult{fields: fields}
	logger.Debug().
		Strs("available_fields", result.Fields()).
		Bool("has_primer_premio", doc.Get("primerPremio").Exists()).
		Bool("has_segundo_premio", doc.Get("segundoPremio").Exists()).
		Msg("Normalizing results")

	items := make([]Item, 0)
	for _, cat := range Categories {
		got, err := cat.extract(doc.Get(cat.Field))
		if err != nil {
			logger.Warn().Err(err).Str("field", cat.Field).Msgf("Error processing %s", cat.Field)
			continue
		}
		items = append(items, got...)
	}
	result.items = items

	logger.Debug().
		Int("normalized_items_count", len(items)).
		Strs("prize_types", distinctTypes(items)).
		Msg("Results normalized")

	return result, nil
}

// extract maps one category's value to items. An absent value yields no
// items and no error.
func (c Category) extract(v gjson.Result) ([]Item, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}

	if c.Single {
		if !v.IsObject() {
			return nil, fmt.Errorf("expected object, got %s", v.Type)
		}
		if !truthy(v.Get("decimo")) {
			return nil, nil
		}
		rec, err := c.decode(v.Raw)
		if err != nil {
			return nil, err
		}
		return []Item{UnifyItem(rec)}, nil
	}

	if !v.IsArray() {
		return nil, fmt.Errorf("expected array, got %s", v.Type)
	}

	elems := v.Array()
	items := make([]Item, 0, len(elems))
	for i, el := range elems {
		rec, err := c.decode(el.Raw)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		items = append(items, UnifyItem(rec))
	}
	return items, nil
}

func (c Category) decode(raw string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, err
	}
	if rec.PrizeType == "" {
		rec.PrizeType = c.DefaultType
	}
	return rec, nil
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	case gjson.True, gjson.JSON:
		return true
	default:
		return false
	}
}

func distinctTypes(items []Item) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0)
	for _, it := range items {
		if _, ok := seen[it.PrizeType]; ok {
			continue
		}
		seen[it.PrizeType] = struct{}{}
		out = append(out, it.PrizeType)
	}
	return out
}
