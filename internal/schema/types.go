package schema

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// typeAliases maps short or internal type names to the names reported by
// information_schema.columns.data_type, upper-cased.
var typeAliases = map[string]string{
	"SERIAL":      TypeInteger,
	"SERIAL4":     TypeInteger,
	"INT":         TypeInteger,
	"INT4":        TypeInteger,
	"BIGSERIAL":   TypeBigInt,
	"SERIAL8":     TypeBigInt,
	"INT8":        TypeBigInt,
	"SMALLSERIAL": "SMALLINT",
	"SERIAL2":     "SMALLINT",
	"INT2":        "SMALLINT",
	"VARCHAR":     TypeVarchar,
	"CHAR":        "CHARACTER",
	"BPCHAR":      "CHARACTER",
	"BOOL":        TypeBoolean,
	"FLOAT4":      TypeReal,
	"FLOAT":       "DOUBLE PRECISION",
	"FLOAT8":      "DOUBLE PRECISION",
	"DOUBLE":      "DOUBLE PRECISION",
	"DECIMAL":     "NUMERIC",
	"TIMESTAMP":   TypeTimestamp,
	"TIMESTAMPTZ": "TIMESTAMP WITH TIME ZONE",
	"TIME":        "TIME WITHOUT TIME ZONE",
	"TIMETZ":      "TIME WITH TIME ZONE",
}

var serialTypes = map[string]bool{
	"SERIAL": true, "SERIAL4": true,
	"BIGSERIAL": true, "SERIAL8": true,
	"SMALLSERIAL": true, "SERIAL2": true,
}

// splitType separates "CHARACTER VARYING(255) PRIMARY KEY" into the upper-cased
// base name, the modifier "(255)" and whether an inline PRIMARY KEY was present.
// A modifier in the middle, as in "TIMESTAMP(3) WITH TIME ZONE", is lifted out.
func splitType(t string) (base, modifier string, inlinePK bool) {
	s := strings.ToUpper(strings.Join(strings.Fields(t), " "))
	if strings.HasSuffix(s, " PRIMARY KEY") {
		s = strings.TrimSuffix(s, " PRIMARY KEY")
		inlinePK = true
	}
	base = s
	if i := strings.Index(s, "("); i >= 0 {
		j := len(s) - 1
		if k := strings.Index(s[i:], ")"); k >= 0 {
			j = i + k
		}
		modifier = strings.ReplaceAll(s[i:j+1], " ", "")
		base = strings.TrimSpace(strings.TrimSpace(s[:i]) + " " + strings.TrimSpace(s[j+1:]))
	}
	return base, modifier, inlinePK
}

func isTimeType(base string) bool {
	return strings.HasPrefix(base, "TIMESTAMP ") || strings.HasPrefix(base, "TIME ")
}

// FormatType joins a base type name and its modifier. Time types carry the
// precision after the first word: TIMESTAMP(3) WITHOUT TIME ZONE.
func FormatType(base, modifier string) string {
	if modifier != "" && isTimeType(base) {
		first, rest, _ := strings.Cut(base, " ")
		return first + modifier + " " + rest
	}
	return base + modifier
}

// canonicalModifier applies the defaults PostgreSQL reports back: NUMERIC(p)
// is NUMERIC(p,0) and time types default to a precision of 6.
func canonicalModifier(base, modifier string) string {
	switch {
	case base == "NUMERIC" && modifier != "" && !strings.Contains(modifier, ","):
		return strings.TrimSuffix(modifier, ")") + ",0)"
	case isTimeType(base) && modifier == "(6)":
		return ""
	}
	return modifier
}

func canonicalBase(base string) string {
	if alias, ok := typeAliases[base]; ok {
		return alias
	}
	return base
}

// NormalizeType returns the canonical form used to compare a desired column
// type with an introspected one.
func NormalizeType(t string) string {
	base, modifier, _ := splitType(t)
	base = canonicalBase(base)
	return FormatType(base, canonicalModifier(base, modifier))
}

// SameType reports whether two type declarations denote the same column type
func SameType(a, b string) bool {
	return NormalizeType(a) == NormalizeType(b)
}

// HasInlinePrimaryKey reports whether the type token itself declares the
// primary key, as in "SERIAL PRIMARY KEY".
func HasInlinePrimaryKey(t string) bool {
	_, _, pk := splitType(t)
	return pk
}

// CastType is the type usable after a "::" cast. Serial pseudo types and an
// inline PRIMARY KEY are not valid cast targets.
func CastType(t string) string {
	base, modifier, _ := splitType(t)
	if serialTypes[base] {
		base = typeAliases[base]
	}
	return FormatType(base, modifier)
}

// FormatDefault renders a default value the way it is compared and embedded
// in a quoted DDL literal.
func FormatDefault(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

var (
	quotedDefaultRe = regexp.MustCompile(`^'((?:[^']|'')*)'(?:::[a-zA-Z0-9_ ()\[\]",]+)*$`)
	bareDefaultRe   = regexp.MustCompile(`^\(?(-?[0-9]+(?:\.[0-9]+)?|true|false)\)?(?:::[a-zA-Z0-9_ ()\[\]",]+)*$`)
)

// ParseDefault extracts the literal value from a column_default expression such
// as 'draft'::character varying or 42. ok is false for NULL and for non-literal
// expressions like nextval(...) or now().
func ParseDefault(expr string) (value string, ok bool) {
	expr = strings.TrimSpace(expr)
	if m := quotedDefaultRe.FindStringSubmatch(expr); m != nil {
		return strings.ReplaceAll(m[1], "''", "'"), true
	}
	if m := bareDefaultRe.FindStringSubmatch(expr); m != nil {
		return m[1], true
	}
	return "", false
}

var numericTypes = map[string]bool{
	"SMALLINT": true, TypeInteger: true, TypeBigInt: true,
	"NUMERIC": true, TypeReal: true, "DOUBLE PRECISION": true,
}

var timeLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z07",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05Z07:00",
	"15:04:05Z07",
	"15:04:05",
	"15:04",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SameDefault reports whether the column_default expression live holds the
// default value want of a column of type sqlType. Numbers and dates are
// compared by value: 0 matches '0.00' and '2024-01-01' matches
// '2024-01-01 00:00:00'.
func SameDefault(want any, live, sqlType string) bool {
	have, ok := ParseDefault(live)
	if !ok {
		return false
	}
	w := FormatDefault(want)
	if have == w {
		return true
	}

	base, _, _ := splitType(sqlType)
	base = canonicalBase(base)
	switch {
	case numericTypes[base]:
		x, okX := new(big.Rat).SetString(have)
		y, okY := new(big.Rat).SetString(w)
		return okX && okY && x.Cmp(y) == 0
	case base == TypeDate || isTimeType(base):
		x, okX := parseTime(have)
		y, okY := parseTime(w)
		return okX && okY && x.Equal(y)
	}
	return false
}

// IsSequenceDefault reports whether a column_default comes from a sequence
func IsSequenceDefault(expr string) bool {
	return strings.HasPrefix(strings.TrimSpace(strings.ToLower(expr)), "nextval(")
}

// IsNullDefault reports whether a column_default is an explicit NULL
func IsNullDefault(expr string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(expr)), "NULL")
}
