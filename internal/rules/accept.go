// internal/rules/accept.go
package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/solatis/segmenter/internal/types"
)

/*
 * Acceptance of externally produced trees.
 *
 * Documents from the natural-language collaborator, API callers or storage
 * are untrusted. Accept runs them through:
 *   1. JSON Schema (draft 2020-12) shape check of the raw document
 *   2. Decode into a Document
 *   3. id normalization: trim, optionally assign missing ids
 *   4. Structural checks in NewTree (duplicates, depth, size)
 *   5. Registry checks on every rule
 *   6. Optional seeding of an empty root
 *
 * A document failing any step is rejected whole; nothing is repaired beyond
 * what the options explicitly ask for.
 */

//go:embed schema/rule_tree.schema.json
var ruleTreeSchema string

const ruleTreeSchemaURL = "https://schemas.segmenter.local/rule-tree.schema.json"

// MaxDocumentSize bounds the raw size of an accepted document.
const MaxDocumentSize = 1 << 20

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(ruleTreeSchemaURL, strings.NewReader(ruleTreeSchema)); err != nil {
		return nil, fmt.Errorf("rule tree schema load failed: %w", err)
	}
	return c.Compile(ruleTreeSchemaURL)
})

// AcceptOptions controls normalization of accepted documents.
type AcceptOptions struct {
	// AssignMissingIDs gives fresh ids to nodes without one instead of
	// rejecting the document.
	AssignMissingIDs bool

	// SeedIfEmpty adds Seed to a root group with no children.
	SeedIfEmpty bool
	Seed        RuleSpec

	// NewID overrides UUIDv7 ids for assigned nodes.
	NewID func() types.NodeID
}

// Accept validates an untrusted JSON document and returns the tree it holds.
func Accept(raw []byte, reg *Registry, opts AcceptOptions) (*Tree, error) {
	if len(raw) > MaxDocumentSize {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", types.ErrInvalidDocument, MaxDocumentSize)
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidDocument, err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidDocument, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidDocument, err)
	}
	return AcceptDocument(doc, reg, opts)
}

// AcceptDocument applies steps 3 to 6 of Accept to an already decoded document.
func AcceptDocument(doc Document, reg *Registry, opts AcceptOptions) (*Tree, error) {
	newID := opts.NewID
	if newID == nil {
		newID = types.NewNodeID
	}
	if err := normalizeIDs(&doc, opts.AssignMissingIDs, newID); err != nil {
		return nil, err
	}
	t, err := Decode(doc)
	if err != nil {
		return nil, err
	}
	ed := NewEditor(reg, WithIDGenerator(newID))
	if err := ed.Validate(t); err != nil {
		return nil, err
	}
	if opts.SeedIfEmpty && len(t.root.Children) == 0 {
		seed := opts.Seed
		if seed.Field == "" {
			seed = DefaultRuleSpec
		}
		if t, _, err = ed.AddRule(t, t.root.ID, seed); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func normalizeIDs(d *Document, assign bool, newID func() types.NodeID) error {
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		if !assign {
			return fmt.Errorf("%w: node without id", types.ErrInvalidDocument)
		}
		d.ID = string(newID())
	}
	for i := range d.Children {
		if err := normalizeIDs(&d.Children[i], assign, newID); err != nil {
			return err
		}
	}
	return nil
}
