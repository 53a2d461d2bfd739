// internal/rules/registry.go
package rules

import (
	"fmt"
	"slices"

	"github.com/solatis/segmenter/internal/types"
)

/*
 * Field Type Registry.
 *
 * Maps a field key to its semantic type and the ordered operator set valid
 * for that type. A Registry is an immutable value built explicitly and passed
 * to the editor, evaluator and calculator; nothing in this package reads a
 * process-wide registry.
 *
 * Operator order matters: the first operator of a field is the default the
 * editor falls back to when a field change invalidates the current operator.
 */

// FieldType is the semantic type of a customer attribute.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeDate   FieldType = "date"
)

// Operator is a rule comparison key.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpBetween     Operator = "between"
	OpBefore      Operator = "before"
	OpAfter       Operator = "after"
	OpDaysAgo     Operator = "daysAgo"
)

var typeOperators = map[FieldType][]Operator{
	TypeString: {OpEquals, OpContains, OpStartsWith, OpEndsWith},
	TypeNumber: {OpEquals, OpGreaterThan, OpLessThan, OpBetween},
	TypeDate:   {OpBefore, OpAfter, OpBetween, OpDaysAgo},
}

// OperatorsForType returns the full operator set of a semantic type.
func OperatorsForType(ft FieldType) []Operator {
	return slices.Clone(typeOperators[ft])
}

// Descriptor is one registry entry.
type Descriptor struct {
	Key       string     `json:"key" mapstructure:"key" yaml:"key"`
	Label     string     `json:"label" mapstructure:"label" yaml:"label"`
	Type      FieldType  `json:"type" mapstructure:"type" yaml:"type"`
	Operators []Operator `json:"operators" mapstructure:"operators" yaml:"operators"`
}

// Registry is an immutable field-key -> descriptor mapping.
type Registry struct {
	fields []Descriptor
	byKey  map[string]int
}

// NewRegistry validates the descriptors and builds a registry. A descriptor
// without operators gets its type's full operator set; one without a label
// is labelled with its key.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		fields: make([]Descriptor, 0, len(descriptors)),
		byKey:  make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if err := r.add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(d Descriptor) error {
	if d.Key == "" {
		return fmt.Errorf("registry: descriptor with empty key")
	}
	if _, dup := r.byKey[d.Key]; dup {
		return fmt.Errorf("registry: duplicate field %q", d.Key)
	}
	allowed, ok := typeOperators[d.Type]
	if !ok {
		return fmt.Errorf("registry: field %q has unknown type %q", d.Key, d.Type)
	}
	if len(d.Operators) == 0 {
		d.Operators = slices.Clone(allowed)
	} else {
		d.Operators = slices.Clone(d.Operators)
		for _, op := range d.Operators {
			if !slices.Contains(allowed, op) {
				return fmt.Errorf("registry: operator %q not valid for %s field %q", op, d.Type, d.Key)
			}
		}
	}
	if d.Label == "" {
		d.Label = d.Key
	}
	r.byKey[d.Key] = len(r.fields)
	r.fields = append(r.fields, d)
	return nil
}

// DefaultRegistry returns the standard CRM customer fields.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Descriptor{Key: "customerName", Label: "Customer Name", Type: TypeString},
		Descriptor{Key: "email", Label: "Email", Type: TypeString},
		Descriptor{Key: "totalSpend", Label: "Total Spend", Type: TypeNumber},
		Descriptor{Key: "lastPurchaseDate", Label: "Last Purchase Date", Type: TypeDate},
		Descriptor{Key: "visits", Label: "Visits", Type: TypeNumber},
		Descriptor{Key: "daysInactive", Label: "Days Inactive", Type: TypeNumber},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Extend returns a new registry holding r's fields followed by descriptors.
func (r *Registry) Extend(descriptors ...Descriptor) (*Registry, error) {
	return NewRegistry(append(r.Fields(), descriptors...)...)
}

// Descriptor looks up a field.
func (r *Registry) Descriptor(field string) (Descriptor, error) {
	i, ok := r.byKey[field]
	if !ok {
		return Descriptor{}, &types.ValidationError{Err: types.ErrUnknownField, Field: field}
	}
	d := r.fields[i]
	d.Operators = slices.Clone(d.Operators)
	return d, nil
}

// TypeOf returns the semantic type of field.
func (r *Registry) TypeOf(field string) (FieldType, error) {
	i, ok := r.byKey[field]
	if !ok {
		return "", &types.ValidationError{Err: types.ErrUnknownField, Field: field}
	}
	return r.fields[i].Type, nil
}

// OperatorsFor returns the ordered operator set of field.
func (r *Registry) OperatorsFor(field string) ([]Operator, error) {
	i, ok := r.byKey[field]
	if !ok {
		return nil, &types.ValidationError{Err: types.ErrUnknownField, Field: field}
	}
	return slices.Clone(r.fields[i].Operators), nil
}

// DefaultOperator returns the first operator of field.
func (r *Registry) DefaultOperator(field string) (Operator, error) {
	i, ok := r.byKey[field]
	if !ok {
		return "", &types.ValidationError{Err: types.ErrUnknownField, Field: field}
	}
	return r.fields[i].Operators[0], nil
}

// Allows reports an error unless op is valid for field.
func (r *Registry) Allows(field string, op Operator) error {
	i, ok := r.byKey[field]
	if !ok {
		return &types.ValidationError{Err: types.ErrUnknownField, Field: field}
	}
	if !slices.Contains(r.fields[i].Operators, op) {
		return &types.ValidationError{Err: types.ErrUnknownOperator, Field: field, Operator: string(op)}
	}
	return nil
}

// Label returns the display label of field, or the key itself when unknown.
func (r *Registry) Label(field string) string {
	if i, ok := r.byKey[field]; ok {
		return r.fields[i].Label
	}
	return field
}

// Fields returns all descriptors in registration order.
func (r *Registry) Fields() []Descriptor {
	out := make([]Descriptor, len(r.fields))
	for i, d := range r.fields {
		d.Operators = slices.Clone(d.Operators)
		out[i] = d
	}
	return out
}

// Len returns the number of registered fields.
func (r *Registry) Len() int { return len(r.fields) }
