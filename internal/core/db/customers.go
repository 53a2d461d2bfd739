package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/solatis/segmenter/internal/rules"
	"github.com/solatis/segmenter/internal/types"
)

// Attribute keys stored in dedicated columns. Any other attribute, or a
// column attribute whose value does not fit the column type, goes to the
// attributes JSON column so the evaluator still sees it.
const (
	AttrCustomerName     = "customerName"
	AttrEmail            = "email"
	AttrTotalSpend       = "totalSpend"
	AttrLastPurchaseDate = "lastPurchaseDate"
	AttrVisits           = "visits"
	AttrDaysInactive     = "daysInactive"
)

// DefaultStreamChunk is the page size of CustomerStore.Stream.
const DefaultStreamChunk = rules.DefaultChunkSize

type customerRow struct {
	ID               string          `db:"customer_id"`
	Name             sql.NullString  `db:"customer_name"`
	Email            sql.NullString  `db:"email"`
	TotalSpend       sql.NullFloat64 `db:"total_spend"`
	LastPurchaseDate sql.NullTime    `db:"last_purchase_date"`
	Visits           sql.NullInt64   `db:"visits"`
	DaysInactive     sql.NullInt64   `db:"days_inactive"`
	Attributes       sql.NullString  `db:"attributes"`
}

// customer rebuilds the attribute record. NULL columns stay absent so the
// evaluator treats them as missing.
func (r customerRow) customer() (types.Customer, error) {
	attrs := types.Record{}
	if r.Attributes.Valid && r.Attributes.String != "" {
		dec := json.NewDecoder(strings.NewReader(r.Attributes.String))
		dec.UseNumber()
		if err := dec.Decode(&attrs); err != nil {
			return types.Customer{}, fmt.Errorf("customer %s: attributes: %w", r.ID, err)
		}
	}
	if r.Name.Valid {
		attrs[AttrCustomerName] = r.Name.String
	}
	if r.Email.Valid {
		attrs[AttrEmail] = r.Email.String
	}
	if r.TotalSpend.Valid {
		attrs[AttrTotalSpend] = r.TotalSpend.Float64
	}
	if r.LastPurchaseDate.Valid {
		attrs[AttrLastPurchaseDate] = r.LastPurchaseDate.Time.UTC()
	}
	if r.Visits.Valid {
		attrs[AttrVisits] = r.Visits.Int64
	}
	if r.DaysInactive.Valid {
		attrs[AttrDaysInactive] = r.DaysInactive.Int64
	}
	return types.Customer{ID: types.CustomerID(r.ID), Attributes: attrs}, nil
}

// CustomerStore holds the customer population audiences are computed over.
type CustomerStore struct {
	q   *Queries
	now func() time.Time
}

// NewCustomerStore creates a store over q.
func NewCustomerStore(q *Queries) *CustomerStore {
	return &CustomerStore{q: q, now: time.Now}
}

// Insert stores c, assigning an id when it has none.
func (s *CustomerStore) Insert(ctx context.Context, c *types.Customer) error {
	if c.ID == "" {
		c.ID = types.NewCustomerID()
	}

	extra := types.Record{}
	var (
		name, email   sql.NullString
		spend         sql.NullFloat64
		lastPurchase  sql.NullTime
		visits, idle  sql.NullInt64
		attributesCol sql.NullString
	)
	for key, v := range c.Attributes {
		if v == nil {
			continue
		}
		ok := false
		switch key {
		case AttrCustomerName:
			name.String, ok = v.(string)
			name.Valid = ok
		case AttrEmail:
			email.String, ok = v.(string)
			email.Valid = ok
		case AttrTotalSpend:
			spend.Float64, ok = number(v)
			spend.Valid = ok
		case AttrLastPurchaseDate:
			lastPurchase.Time, ok = date(v)
			lastPurchase.Valid = ok
		case AttrVisits:
			visits.Int64, ok = integer(v)
			visits.Valid = ok
		case AttrDaysInactive:
			idle.Int64, ok = integer(v)
			idle.Valid = ok
		}
		if !ok {
			extra[key] = v
		}
	}
	if len(extra) > 0 {
		raw, err := json.Marshal(extra)
		if err != nil {
			return fmt.Errorf("customer %s: attributes: %w", c.ID, err)
		}
		attributesCol = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.q.Exec(ctx, "insert-customer",
		string(c.ID), name, email, spend, lastPurchase, visits, idle, attributesCol, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// Count returns the population size.
func (s *CustomerStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.q.Get(ctx, "count-customers", &n); err != nil {
		return 0, fmt.Errorf("count customers: %w", err)
	}
	return n, nil
}

// Delete removes one customer.
func (s *CustomerStore) Delete(ctx context.Context, id types.CustomerID) error {
	if _, err := s.q.Exec(ctx, "delete-customer", string(id)); err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	return nil
}

// Stream pages through the population in customer id order.
func (s *CustomerStore) Stream(chunk int) rules.CustomerSource {
	if chunk <= 0 {
		chunk = DefaultStreamChunk
	}
	return &CustomerCursor{store: s, chunk: chunk}
}

// CustomerCursor is a keyset-paginated read over the customers table.
type CustomerCursor struct {
	store *CustomerStore
	chunk int
	after string
	done  bool
}

var _ rules.CustomerSource = (*CustomerCursor)(nil)

// Next returns the next page, or io.EOF once the table is exhausted.
func (c *CustomerCursor) Next(ctx context.Context) ([]types.Customer, error) {
	if c.done {
		return nil, io.EOF
	}
	var rows []customerRow
	if err := c.store.q.Select(ctx, "stream-customers", &rows, c.after, c.chunk); err != nil {
		return nil, fmt.Errorf("stream customers: %w", err)
	}
	if len(rows) < c.chunk {
		c.done = true
	}
	if len(rows) == 0 {
		return nil, io.EOF
	}

	out := make([]types.Customer, 0, len(rows))
	for _, r := range rows {
		cust, err := r.customer()
		if err != nil {
			return nil, err
		}
		out = append(out, cust)
	}
	c.after = rows[len(rows)-1].ID
	return out, nil
}

// number accepts the numeric shapes produced by JSON and YAML decoders.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func integer(v any) (int64, bool) {
	f, ok := number(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func date(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d.UTC(), !d.IsZero()
	case string:
		for _, layout := range []string{"2006-01-02", time.RFC3339} {
			if t, err := time.Parse(layout, strings.TrimSpace(d)); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// LoadCustomers decodes a JSON array of customers. Numbers are kept as
// json.Number so integer attributes survive unchanged.
func LoadCustomers(r io.Reader) ([]types.Customer, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var customers []types.Customer
	if err := dec.Decode(&customers); err != nil {
		return nil, fmt.Errorf("decode customers: %w", err)
	}
	return customers, nil
}
