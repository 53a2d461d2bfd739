package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/segmenter/internal/rules"
	"github.com/solatis/segmenter/internal/types"
)

func TestCustomerStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewCustomerStore(openTestQueries(t))

	purchased := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := &types.Customer{ID: "c-1", Attributes: types.Record{
		AttrCustomerName:     "Ada Lovelace",
		AttrEmail:            "ada@example.com",
		AttrTotalSpend:       json.Number("12000.5"),
		AttrLastPurchaseDate: "2025-03-01",
		AttrVisits:           7,
		AttrDaysInactive:     nil,
		"loyaltyTier":        "gold",
		AttrTotalSpend + "X": 1,
	}}
	require.NoError(t, store.Insert(ctx, c))

	src := store.Stream(10)
	page, err := src.Next(ctx)
	require.NoError(t, err)
	require.Len(t, page, 1)

	got := page[0]
	assert.Equal(t, types.CustomerID("c-1"), got.ID)
	assert.Equal(t, "Ada Lovelace", got.Attributes[AttrCustomerName])
	assert.Equal(t, 12000.5, got.Attributes[AttrTotalSpend])
	assert.Equal(t, int64(7), got.Attributes[AttrVisits])
	assert.True(t, purchased.Equal(got.Attributes[AttrLastPurchaseDate].(time.Time)))
	assert.Equal(t, "gold", got.Attributes["loyaltyTier"])
	assert.Equal(t, json.Number("1"), got.Attributes["totalSpendX"])
	_, present := got.Attributes[AttrDaysInactive]
	assert.False(t, present, "NULL columns must stay missing")

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCustomerStore_OddValuesKeptAsAttributes(t *testing.T) {
	ctx := context.Background()
	store := NewCustomerStore(openTestQueries(t))

	c := &types.Customer{Attributes: types.Record{
		AttrTotalSpend: "lots",
		AttrVisits:     2.5,
	}}
	require.NoError(t, store.Insert(ctx, c))
	assert.NotEmpty(t, c.ID, "id assigned on insert")

	page, err := store.Stream(0).Next(ctx)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "lots", page[0].Attributes[AttrTotalSpend])
	assert.Equal(t, json.Number("2.5"), page[0].Attributes[AttrVisits])

	// The evaluator reports the incoercible spend as unevaluable.
	reg := rules.DefaultRegistry()
	tree, err := rules.NewEditor(reg).NewTree(rules.RuleSpec{Field: AttrTotalSpend, Operator: rules.OpGreaterThan, Value: "10"})
	require.NoError(t, err)
	aud, err := rules.NewCalculator(reg).Compute(ctx, tree.Root(), page)
	require.NoError(t, err)
	assert.Equal(t, 1, aud.UnevaluableCount)
}

func TestCustomerStore_StreamFeedsCalculator(t *testing.T) {
	ctx := context.Background()
	store := NewCustomerStore(openTestQueries(t))

	var all []types.Customer
	for i := range 25 {
		c := types.Customer{
			ID: types.CustomerID(fmt.Sprintf("cust-%03d", i)),
			Attributes: types.Record{
				AttrTotalSpend: float64(i * 100),
				AttrVisits:     i % 5,
			},
		}
		require.NoError(t, store.Insert(ctx, &c))
		all = append(all, c)
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 25, n)

	reg := rules.DefaultRegistry()
	tree, err := rules.NewEditor(reg).NewTree(rules.RuleSpec{Field: AttrTotalSpend, Operator: rules.OpGreaterThan, Value: "1000"})
	require.NoError(t, err)

	now := func() time.Time { return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC) }
	calc := rules.NewCalculator(reg, rules.WithClock(now), rules.WithWorkers(4))

	streamed, err := calc.ComputeStream(ctx, tree.Root(), store.Stream(7))
	require.NoError(t, err)
	inline, err := calc.Compute(ctx, tree.Root(), all)
	require.NoError(t, err)

	assert.Equal(t, 14, streamed.MatchedCount)
	assert.Equal(t, inline.MatchedIDs, streamed.MatchedIDs)
	assert.Equal(t, 25, streamed.Evaluated)
}

func TestCustomerStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewCustomerStore(openTestQueries(t))

	require.NoError(t, store.Insert(ctx, &types.Customer{ID: "c-1"}))
	require.NoError(t, store.Delete(ctx, "c-1"))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadCustomers(t *testing.T) {
	in := `[{"id":"a","attributes":{"visits":3,"email":"a@example.com"}},{"id":"b","attributes":{}}]`
	customers, err := LoadCustomers(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, json.Number("3"), customers[0].Attributes["visits"])

	_, err = LoadCustomers(strings.NewReader(`{"id":"a"}`))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
}
