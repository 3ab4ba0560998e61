package domain

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// PlaceholderFormat selects how bind parameters are written
type PlaceholderFormat int

const (
	// Question writes every parameter as ?
	Question PlaceholderFormat = iota
	// Dollar writes numbered parameters $1, $2, ... as PostgreSQL drivers expect
	Dollar
)

var termOperators = map[string]string{
	"=":           "=",
	"!=":          "!=",
	"<>":          "!=",
	"<":           "<",
	"<=":          "<=",
	">":           ">",
	">=":          ">=",
	"like":        "LIKE",
	"not like":    "NOT LIKE",
	"ilike":       "ILIKE",
	"not ilike":   "NOT ILIKE",
	"in":          "IN",
	"not in":      "NOT IN",
	"startswith":  "LIKE",
	"endswith":    "LIKE",
	"contains":    "LIKE",
	"is null":     "IS NULL",
	"is not null": "IS NOT NULL",
}

// Translator compiles domains into SQL predicates. The zero value uses ?
// placeholders and rejects hierarchical operators. It holds no state and is
// safe for concurrent use.
type Translator struct {
	Placeholder PlaceholderFormat

	// HierarchyTable is the table queried by child_of and parent_of. It must
	// have id and parent_id columns.
	HierarchyTable string
}

// Translate compiles d with the default Translator
func Translate(d Domain) (string, []any, error) {
	return Translator{}.Translate(d)
}

// Translate returns "1=1" for an empty domain and "WHERE <predicate>"
// otherwise, along with the parameters in placeholder order.
func (t Translator) Translate(d Domain) (string, []any, error) {
	root, err := BuildTree(d)
	if err != nil {
		return "", nil, err
	}
	if root == nil {
		return "1=1", []any{}, nil
	}

	r := &renderer{t: t, params: []any{}}
	if err := r.render(root); err != nil {
		return "", nil, err
	}
	return "WHERE " + r.sb.String(), r.params, nil
}

type renderer struct {
	t      Translator
	sb     strings.Builder
	params []any
}

func (r *renderer) bind(v any) string {
	r.params = append(r.params, v)
	if r.t.Placeholder == Dollar {
		return "$" + strconv.Itoa(len(r.params))
	}
	return "?"
}

func (r *renderer) render(n Node) error {
	switch node := n.(type) {
	case *ConditionNode:
		return r.condition(node.Condition)
	case *AndNode:
		return r.binary(node.Left, node.Right, "AND", node.Grouped)
	case *OrNode:
		return r.binary(node.Left, node.Right, "OR", node.Grouped)
	case *NotNode:
		r.sb.WriteString("NOT (")
		if err := r.render(node.Operand); err != nil {
			return err
		}
		r.sb.WriteString(")")
		return nil
	default:
		return fmt.Errorf("%w: unknown node %T", ErrInvalidExpression, n)
	}
}

func (r *renderer) binary(left, right Node, keyword string, grouped bool) error {
	if grouped {
		r.sb.WriteString("(")
	}
	if err := r.render(left); err != nil {
		return err
	}
	r.sb.WriteString(" " + keyword + " ")
	if err := r.render(right); err != nil {
		return err
	}
	if grouped {
		r.sb.WriteString(")")
	}
	return nil
}

func (r *renderer) condition(c Condition) error {
	op := strings.ToLower(strings.Join(strings.Fields(c.Operator), " "))
	sqlOp, ok := termOperators[op]
	if !ok {
		sqlOp = "="
	}

	switch op {
	case "in", "not in":
		values := listValues(c.Value)
		if len(values) == 0 {
			if op == "in" {
				r.sb.WriteString("1=0")
			} else {
				r.sb.WriteString("1=1")
			}
			return nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = r.bind(v)
		}
		fmt.Fprintf(&r.sb, "%s %s (%s)", c.Field, sqlOp, strings.Join(placeholders, ", "))
	case "startswith":
		fmt.Fprintf(&r.sb, "%s %s %s", c.Field, sqlOp, r.bind(fmt.Sprintf("%v%%", c.Value)))
	case "endswith":
		fmt.Fprintf(&r.sb, "%s %s %s", c.Field, sqlOp, r.bind(fmt.Sprintf("%%%v", c.Value)))
	case "contains":
		fmt.Fprintf(&r.sb, "%s %s %s", c.Field, sqlOp, r.bind(fmt.Sprintf("%%%v%%", c.Value)))
	case "is null", "is not null":
		fmt.Fprintf(&r.sb, "%s %s", c.Field, sqlOp)
	case "child_of", "parent_of":
		if r.t.HierarchyTable == "" || !fieldRe.MatchString(r.t.HierarchyTable) {
			return fmt.Errorf("%w: %s on %s needs a hierarchy table", ErrInvalidExpression, op, c.Field)
		}
		if op == "child_of" {
			fmt.Fprintf(&r.sb, "%s IN (SELECT id FROM %s WHERE parent_id = %s)", c.Field, r.t.HierarchyTable, r.bind(c.Value))
		} else {
			fmt.Fprintf(&r.sb, "%s IN (SELECT parent_id FROM %s WHERE id = %s)", c.Field, r.t.HierarchyTable, r.bind(c.Value))
		}
	default:
		fmt.Fprintf(&r.sb, "%s %s %s", c.Field, sqlOp, r.bind(c.Value))
	}
	return nil
}

// listValues flattens the value of an in / not in condition. Scalars count
// as a one-element list; byte slices are scalars.
func listValues(v any) []any {
	if v == nil {
		return nil
	}
	if _, ok := v.([]byte); ok {
		return []any{v}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values
}
