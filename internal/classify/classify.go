// Package classify validates classifier replies against the taxonomy. A reply
// is untrusted until Validate accepts it.
package classify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/linnemanlabs/intake/internal/taxonomy"
)

// Result is a validated classification.
type Result struct {
	Category   taxonomy.Category `json:"category"`
	Type       string            `json:"type"`
	Confidence float64           `json:"confidence"`
}

// Kind identifies why a reply was rejected.
type Kind string

const (
	KindMalformedJSON     Kind = "malformed_json"
	KindMissingField      Kind = "missing_field"
	KindInvalidCategory   Kind = "invalid_category"
	KindUnknownType       Kind = "unknown_type"
	KindInvalidConfidence Kind = "invalid_confidence"
)

// Required reply keys.
const (
	FieldCategory   = "category"
	FieldType       = "type"
	FieldConfidence = "confidence"
)

// ValidationError describes a rejected reply.
type ValidationError struct {
	Kind  Kind
	Field string // set for KindMissingField
	Err   error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Kind == KindMissingField:
		return fmt.Sprintf("classification reply: %s: %q", e.Kind, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("classification reply: %s: %v", e.Kind, e.Err)
	default:
		return "classification reply: " + string(e.Kind)
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsKind reports whether err is a ValidationError of kind k.
func IsKind(err error, k Kind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == k
}

// Validate parses raw as a single JSON object and checks it against tax.
// Checks run in order: syntax, required keys, category, type, confidence.
func Validate(raw string, tax *taxonomy.Taxonomy) (Result, error) {
	fields, err := parseObject(raw)
	if err != nil {
		return Result{}, &ValidationError{Kind: KindMalformedJSON, Err: err}
	}

	for _, k := range []string{FieldCategory, FieldType, FieldConfidence} {
		if _, ok := fields[k]; !ok {
			return Result{}, &ValidationError{Kind: KindMissingField, Field: k}
		}
	}

	var catStr string
	if err := json.Unmarshal(fields[FieldCategory], &catStr); err != nil {
		return Result{}, &ValidationError{Kind: KindInvalidCategory, Err: fmt.Errorf("category is not a string: %s", fields[FieldCategory])}
	}
	category, ok := taxonomy.ParseCategory(catStr)
	if !ok {
		return Result{}, &ValidationError{Kind: KindInvalidCategory, Err: fmt.Errorf("%q is not one of %q, %q", catStr, taxonomy.Medical, taxonomy.NonMedical)}
	}

	var typ string
	if err := json.Unmarshal(fields[FieldType], &typ); err != nil {
		return Result{}, &ValidationError{Kind: KindUnknownType, Err: fmt.Errorf("type is not a string: %s", fields[FieldType])}
	}
	// category and type are checked independently; routing follows the
	// reply's category even when the type is filed under the other one
	if _, err := tax.Lookup(typ); err != nil {
		return Result{}, &ValidationError{Kind: KindUnknownType, Err: err}
	}

	conf, err := parseConfidence(fields[FieldConfidence])
	if err != nil {
		return Result{}, &ValidationError{Kind: KindInvalidConfidence, Err: err}
	}

	return Result{Category: category, Type: typ, Confidence: conf}, nil
}

// parseObject decodes exactly one JSON object, tolerating a surrounding
// markdown code fence.
func parseObject(raw string) (map[string]json.RawMessage, error) {
	body := stripCodeFence(strings.TrimSpace(raw))
	if body == "" {
		return nil, errors.New("empty reply")
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("top-level value is not an object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}
	return fields, nil
}

// stripCodeFence removes a single ```/```json fence wrapping the whole reply.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := s[3 : len(s)-3]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		// drop the info string, e.g. "json"
		if !strings.ContainsAny(inner[:nl], "{[") {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner)
}

func parseConfidence(raw json.RawMessage) (float64, error) {
	var v float64
	raw = bytes.TrimSpace(raw)

	switch {
	case len(raw) > 0 && raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("confidence %q is not a number", s)
		}
		v = f
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, fmt.Errorf("confidence %s is not a number", raw)
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("confidence %s is not a number", raw)
		}
		v = f
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("confidence %v is not finite", v)
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("confidence %v is outside [0, 1]", v)
	}
	return v, nil
}
