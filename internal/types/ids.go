package types

import (
	"time"

	"github.com/google/uuid"
)

// NewNodeID generates a UUIDv7 identifier for a rule or group.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewNodeID() NodeID {
	return NodeID(uuid.Must(uuid.NewV7()).String())
}

// NewSegmentID generates a UUIDv7 segment identifier.
// Time-ordered IDs keep sequential inserts clustered in B-tree pages.
func NewSegmentID() SegmentID {
	return SegmentID(uuid.Must(uuid.NewV7()).String())
}

// NewCustomerID generates a UUIDv7 customer identifier.
func NewCustomerID() CustomerID {
	return CustomerID(uuid.Must(uuid.NewV7()).String())
}

// ParseSegmentID validates and converts a string to SegmentID.
func ParseSegmentID(s string) (SegmentID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return SegmentID(s), nil
}

// SegmentIDTime extracts the creation time embedded in a UUIDv7 segment id.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func SegmentIDTime(id SegmentID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
