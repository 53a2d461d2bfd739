// internal/rules/codec.go
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/solatis/segmenter/internal/types"
)

/*
 * Document codec.
 *
 * The portable form of a tree is a nested JSON document:
 *
 *   group: {"id","type":"group","combinator":"AND"|"OR","children":[...]}
 *   rule:  {"id","type":"rule","field","operator","value"}
 *
 * Children order is preserved both ways. Decoding additionally accepts the
 * legacy editor shape: "rules" instead of "children", nodes without "type"
 * (a node with field or operator is a rule), and numeric values, which are
 * kept as their literal text.
 */

// Node type discriminators.
const (
	NodeTypeGroup = "group"
	NodeTypeRule  = "rule"
)

// Document is the serializable form of a node.
type Document struct {
	ID         string
	Type       string
	Combinator string
	Children   []Document
	Field      string
	Operator   string
	Value      string
}

type groupWire struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Combinator string     `json:"combinator"`
	Children   []Document `json:"children"`
}

type ruleWire struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type inboundWire struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Combinator string          `json:"combinator"`
	Children   []Document      `json:"children"`
	Rules      []Document      `json:"rules"`
	Field      string          `json:"field"`
	Operator   string          `json:"operator"`
	Value      json.RawMessage `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (d Document) MarshalJSON() ([]byte, error) {
	if d.Type == NodeTypeRule {
		return json.Marshal(ruleWire{ID: d.ID, Type: NodeTypeRule, Field: d.Field, Operator: d.Operator, Value: d.Value})
	}
	children := d.Children
	if children == nil {
		children = []Document{}
	}
	return json.Marshal(groupWire{ID: d.ID, Type: NodeTypeGroup, Combinator: d.Combinator, Children: children})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	var w inboundWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Children) > 0 && len(w.Rules) > 0 {
		return fmt.Errorf("%w: node %q has both children and rules", types.ErrInvalidDocument, w.ID)
	}
	typ := w.Type
	if typ == "" {
		typ = NodeTypeGroup
		if w.Field != "" || w.Operator != "" {
			typ = NodeTypeRule
		}
	}
	value, err := literalText(w.Value)
	if err != nil {
		return fmt.Errorf("%w: node %q: %v", types.ErrInvalidDocument, w.ID, err)
	}
	children := w.Children
	if children == nil {
		children = w.Rules
	}
	*d = Document{
		ID:         w.ID,
		Type:       typ,
		Combinator: w.Combinator,
		Children:   children,
		Field:      w.Field,
		Operator:   w.Operator,
		Value:      value,
	}
	return nil
}

// literalText converts a JSON string or number literal to its text.
func literalText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		err := json.Unmarshal(raw, &n)
		return n.String(), err
	}
	return "", fmt.Errorf("value must be a string or number")
}

// Encode converts a node to its document form.
func Encode(n Node) Document {
	switch v := n.(type) {
	case *Rule:
		return Document{ID: string(v.ID), Type: NodeTypeRule, Field: v.Field, Operator: string(v.Operator), Value: v.Value}
	case *Group:
		d := Document{ID: string(v.ID), Type: NodeTypeGroup, Combinator: string(v.Combinator), Children: make([]Document, len(v.Children))}
		for i, c := range v.Children {
			d.Children[i] = Encode(c)
		}
		return d
	}
	return Document{}
}

// Decode builds a tree from a document. It checks structure only; use
// Accept for documents from outside the process.
func Decode(d Document) (*Tree, error) {
	if d.Type != NodeTypeGroup {
		return nil, fmt.Errorf("%w: root must be a group", types.ErrInvalidDocument)
	}
	n, err := decodeNode(d, 0)
	if err != nil {
		return nil, err
	}
	return NewTree(n.(*Group))
}

func decodeNode(d Document, depth int) (Node, error) {
	switch d.Type {
	case NodeTypeRule:
		return &Rule{ID: types.NodeID(d.ID), Field: d.Field, Operator: Operator(d.Operator), Value: d.Value}, nil
	case NodeTypeGroup:
		if depth >= types.MaxTreeDepth {
			return nil, &types.ValidationError{Err: types.ErrTreeTooDeep, NodeID: types.NodeID(d.ID)}
		}
		c, err := ParseCombinator(d.Combinator)
		if err != nil {
			return nil, withNode(err, types.NodeID(d.ID))
		}
		g := &Group{ID: types.NodeID(d.ID), Combinator: c, Children: make([]Node, 0, len(d.Children))}
		for _, cd := range d.Children {
			cn, err := decodeNode(cd, depth+1)
			if err != nil {
				return nil, err
			}
			g.Children = append(g.Children, cn)
		}
		return g, nil
	}
	return nil, fmt.Errorf("%w: unknown node type %q", types.ErrInvalidDocument, d.Type)
}

// MarshalJSON implements json.Marshaler.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(Encode(t.root))
}

// Unmarshal decodes a JSON document into a tree (structure only).
func Unmarshal(data []byte) (*Tree, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidDocument, err)
	}
	return Decode(d)
}
