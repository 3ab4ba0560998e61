package domain

import "fmt"

// Node is an element of a compiled expression tree
type Node interface {
	node()
}

// ConditionNode is a leaf holding one condition
type ConditionNode struct {
	Condition Condition
}

// AndNode joins two operands with AND. Grouped nodes are rendered inside
// parentheses; chains of the same combinator are kept flat.
type AndNode struct {
	Left, Right Node
	Grouped     bool
}

// OrNode joins two operands with OR
type OrNode struct {
	Left, Right Node
	Grouped     bool
}

// NotNode negates its operand
type NotNode struct {
	Operand Node
}

func (*ConditionNode) node() {}
func (*AndNode) node()       {}
func (*OrNode) node()        {}
func (*NotNode) node()       {}

// treeBuilder resolves prefix combinators in a single left-to-right pass
type treeBuilder struct {
	operands []Node
	pending  []Combinator
	seen     bool // a combinator was pushed since the last reduction
	count    int  // conditions read while seen was set
}

// BuildTree compiles a domain into an expression tree. An empty domain yields
// a nil node.
func BuildTree(d Domain) (Node, error) {
	if len(d) == 0 {
		return nil, nil
	}

	b := &treeBuilder{}
	for i, term := range d {
		switch t := term.(type) {
		case Combinator:
			if !t.valid() {
				return nil, fmt.Errorf("%w: unknown combinator %q at position %d", ErrInvalidExpression, string(t), i)
			}
			b.pending = append(b.pending, t)
			b.seen = true
		case Condition:
			if err := t.validate(); err != nil {
				return nil, fmt.Errorf("term %d: %w", i, err)
			}
			b.operands = append(b.operands, &ConditionNode{Condition: t})
			if b.seen {
				b.count++
				if len(b.operands) > 1 && b.count > len(b.pending) {
					b.seen = false
					b.reduce()
				}
			}
		default:
			return nil, fmt.Errorf("%w: unsupported term of type %T at position %d", ErrInvalidExpression, term, i)
		}
	}
	b.reduce()

	if len(b.operands) == 0 {
		return nil, fmt.Errorf("%w: domain has no conditions", ErrInvalidExpression)
	}

	// leftover operands are joined with an implicit AND
	root := b.operands[0]
	for _, n := range b.operands[1:] {
		root = &AndNode{Left: root, Right: n}
	}
	return root, nil
}

func (b *treeBuilder) pop() Node {
	n := b.operands[len(b.operands)-1]
	b.operands = b.operands[:len(b.operands)-1]
	return n
}

func (b *treeBuilder) reduce() {
	for len(b.pending) > 0 {
		op := b.pending[len(b.pending)-1]
		if op != Not && len(b.operands) < 2 {
			break
		}
		b.pending = b.pending[:len(b.pending)-1]

		if op == Not {
			if len(b.operands) > 0 {
				b.operands = append(b.operands, &NotNode{Operand: b.pop()})
			}
			continue
		}

		available := len(b.operands)
		right := b.pop()
		left := b.pop()
		grouped := available <= 2 || len(b.pending) == 0 || b.pending[len(b.pending)-1] != op
		if op == And {
			b.operands = append(b.operands, &AndNode{Left: left, Right: right, Grouped: grouped})
		} else {
			b.operands = append(b.operands, &OrNode{Left: left, Right: right, Grouped: grouped})
		}
	}
}
