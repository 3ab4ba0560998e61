// Package domain compiles structured query domains into parameterized SQL
// predicates.
//
// A domain is a flat list in prefix notation mixing combinators ("&", "|",
// "!") and condition triples (field, operator, value):
//
//	["|", ["name", "=", "John"], ["age", ">", 30]]
//
// Conditions that are not consumed by a combinator are joined with AND.
package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidExpression is returned for malformed domains
var ErrInvalidExpression = errors.New("invalid domain expression")

// Term is either a Combinator or a Condition
type Term interface {
	isTerm()
}

// Combinator is a prefix boolean operator
type Combinator string

const (
	And Combinator = "&"
	Or  Combinator = "|"
	Not Combinator = "!"
)

func (Combinator) isTerm() {}

func (c Combinator) valid() bool {
	return c == And || c == Or || c == Not
}

// Condition is a (field, operator, value) triple
type Condition struct {
	Field    string
	Operator string
	Value    any
}

func (Condition) isTerm() {}

// Cond is shorthand for building a Condition
func Cond(field, operator string, value any) Condition {
	return Condition{Field: field, Operator: operator, Value: value}
}

var fieldRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

func (c Condition) validate() error {
	if !fieldRe.MatchString(c.Field) {
		return fmt.Errorf("%w: invalid field name %q", ErrInvalidExpression, c.Field)
	}
	if strings.TrimSpace(c.Operator) == "" {
		return fmt.Errorf("%w: empty operator for field %s", ErrInvalidExpression, c.Field)
	}
	return nil
}

// Domain is an ordered list of terms
type Domain []Term

// FromValues converts a loosely typed domain, as decoded from JSON or built
// by hand, into a Domain. Strings are combinators and 3-element slices or
// arrays are conditions. Terms that are already a Combinator or Condition
// are kept as is.
func FromValues(values []any) (Domain, error) {
	d := make(Domain, 0, len(values))
	for i, v := range values {
		term, err := toTerm(v)
		if err != nil {
			return nil, fmt.Errorf("term %d: %w", i, err)
		}
		d = append(d, term)
	}
	return d, nil
}

func toTerm(v any) (Term, error) {
	switch t := v.(type) {
	case Combinator:
		if !t.valid() {
			return nil, fmt.Errorf("%w: unknown combinator %q", ErrInvalidExpression, string(t))
		}
		return t, nil
	case Condition:
		return t, nil
	case string:
		c := Combinator(t)
		if !c.valid() {
			return nil, fmt.Errorf("%w: unknown combinator %q", ErrInvalidExpression, t)
		}
		return c, nil
	case [3]any:
		return tripleToCondition(t[:])
	case []any:
		return tripleToCondition(t)
	default:
		return nil, fmt.Errorf("%w: unsupported term of type %T", ErrInvalidExpression, v)
	}
}

func tripleToCondition(triple []any) (Term, error) {
	if len(triple) != 3 {
		return nil, fmt.Errorf("%w: condition must have 3 elements, got %d", ErrInvalidExpression, len(triple))
	}
	field, ok := triple[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: field must be a string, got %T", ErrInvalidExpression, triple[0])
	}
	op, ok := triple[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: operator must be a string, got %T", ErrInvalidExpression, triple[1])
	}
	return Condition{Field: field, Operator: op, Value: triple[2]}, nil
}

// ParseJSON decodes a domain such as ["|", ["age", ">", 30], ["name", "=", "x"]].
// Integral numbers are bound as int64 and other numbers as float64.
func ParseJSON(data []byte) (Domain, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: failed to decode JSON: %v", ErrInvalidExpression, err)
	}
	for i := range raw {
		raw[i] = convertNumbers(raw[i])
	}
	return FromValues(raw)
}

func convertNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = convertNumbers(t[i])
		}
		return t
	default:
		return v
	}
}
