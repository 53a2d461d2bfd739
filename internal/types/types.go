// Package types provides domain models shared across segmenter components.
//
// Rule trees themselves live in internal/rules; this package holds the
// identifiers, customer records, persisted segment shape and errors that
// every layer (store, service, transport) agrees on.
package types

import (
	"encoding/json"
	"time"
)

// NodeID identifies a rule or group. Rules and groups share one namespace.
type NodeID string

// SegmentID represents a UUIDv7 segment identifier.
type SegmentID string

// CustomerID identifies a customer record.
type CustomerID string

// Record is a customer's attribute mapping. Values are whatever the source
// produced (string, float64, json.Number, time.Time, nil); absence and nil are
// both treated as "missing".
type Record map[string]any

// Customer pairs an identifier with its attributes.
type Customer struct {
	ID         CustomerID `json:"id"`
	Attributes Record     `json:"attributes"`
}

// Segment is a named, persisted rule tree.
type Segment struct {
	ID            SegmentID       `json:"id" db:"segment_id"`
	Name          string          `json:"name" db:"name"`
	Description   string          `json:"description" db:"description"`
	Rules         json.RawMessage `json:"rules" db:"rules"`
	ETag          string          `json:"etag" db:"etag"`
	AudienceSize  int64           `json:"audience_size" db:"audience_size"`
	IsAIGenerated bool            `json:"is_ai_generated" db:"is_ai_generated"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Resource limits enforced on rule trees.
const (
	// MaxTreeDepth bounds group nesting so recursive evaluation stays shallow.
	MaxTreeDepth = 16

	// MaxTreeNodes bounds the total number of rules and groups in one tree.
	MaxTreeNodes = 1024

	// MaxValueLength bounds a single rule value.
	MaxValueLength = 256

	// MaxSegmentNameLength bounds a segment name.
	MaxSegmentNameLength = 128
)
