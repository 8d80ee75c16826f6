package cart

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	mu       sync.Mutex
	listings map[string]Listing
	err      error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{listings: make(map[string]Listing)}
}

func (c *fakeCatalog) put(ref string, l Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[ref] = l
}

func (c *fakeCatalog) drop(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listings, ref)
}

func (c *fakeCatalog) Resolve(_ context.Context, ref string) (Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return Listing{}, c.err
	}
	l, ok := c.listings[ref]
	if !ok {
		return Listing{}, ErrProductNotFound
	}
	return l, nil
}

type fakeStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	saveErr error
	loadErr error
	saves   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (s *fakeStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, false, s.loadErr
	}
	b, ok := s.data[key]
	return b, ok, nil
}

func (s *fakeStore) setSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func stock(n int64) *int64 { return &n }

func setupEngine(t *testing.T) (*Engine, *fakeCatalog, *fakeStore) {
	t.Helper()
	cat := newFakeCatalog()
	cat.put("A", Listing{Name: "TroutMaster Spinner", Price: dec("10"), InStock: true})
	cat.put("B", Listing{Name: "MarinePro Jig Kit", Price: dec("12"), SalePrice: decPtr("8"), InStock: true})
	cat.put("C", Listing{Name: "BassPro Worm Set", Price: dec("9.99"), InStock: false})
	cat.put("D", Listing{Name: "Limited Lure", Price: dec("5"), InStock: true, StockQuantity: stock(3)})
	st := newFakeStore()
	return NewEngine(context.Background(), cat, st), cat, st
}

func mustAdd(t *testing.T, e *Engine, ref string, qty int, variant string) {
	t.Helper()
	res, err := e.AddItem(context.Background(), ref, qty, variant)
	require.NoError(t, err)
	require.Equal(t, AddAdded, res)
}

func TestAddItem_MergesSameKey(t *testing.T) {
	e, _, _ := setupEngine(t)
	mustAdd(t, e, "A", 2, "")
	mustAdd(t, e, "A", 3, "")

	items := e.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, 1, e.DistinctItems())
	assert.Equal(t, 5, e.TotalQuantity())
}

func TestAddItem_VariantsAreDistinct(t *testing.T) {
	e, _, _ := setupEngine(t)
	mustAdd(t, e, "A", 1, "red")
	mustAdd(t, e, "A", 1, "blue")
	mustAdd(t, e, "B", 1, "")

	items := e.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "red", items[0].Variant)
	assert.Equal(t, "blue", items[1].Variant)
	assert.Equal(t, "B", items[2].ProductRef)
}

func TestAddItem_Validation(t *testing.T) {
	e, _, st := setupEngine(t)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "A", 0, "")
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.ErrorIs(t, err, ErrValidation)

	_, err = e.AddItem(ctx, "A", -2, "")
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = e.AddItem(ctx, "  ", 1, "")
	require.ErrorIs(t, err, ErrInvalidProductRef)

	assert.Empty(t, e.Items())
	assert.Zero(t, st.saves)
}

func TestAddItem_NotFound(t *testing.T) {
	e, _, _ := setupEngine(t)
	res, err := e.AddItem(context.Background(), "missing", 1, "")
	require.NoError(t, err)
	assert.Equal(t, AddNotFound, res)
	assert.Empty(t, e.Items())
}

func TestAddItem_OutOfStock(t *testing.T) {
	e, _, _ := setupEngine(t)
	res, err := e.AddItem(context.Background(), "C", 1, "")
	require.NoError(t, err)
	assert.Equal(t, AddOutOfStock, res)
	assert.Empty(t, e.Items())
}

func TestAddItem_StockCeiling(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()
	mustAdd(t, e, "D", 2, "")

	res, err := e.AddItem(ctx, "D", 2, "")
	require.NoError(t, err)
	assert.Equal(t, AddOutOfStock, res)
	assert.Equal(t, 2, e.Items()[0].Quantity)

	mustAdd(t, e, "D", 1, "")
	assert.Equal(t, 3, e.Items()[0].Quantity)
}

func TestQuantityBoundaries(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name     string
		ref      string
		first    int
		second   int
		wantRes  AddResult
		wantQty  int
		wantCart int
	}{
		{"merge overflowing int is rejected", "A", 1, math.MaxInt, AddOutOfStock, 1, 1},
		{"merge reaching MaxInt exactly", "A", math.MaxInt - 1, 1, AddAdded, math.MaxInt, math.MaxInt},
		{"merge past MaxInt with stock ceiling", "D", 1, math.MaxInt, AddOutOfStock, 1, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e, cat, st := setupEngine(t)
			mustAdd(t, e, c.ref, c.first, "")
			res, err := e.AddItem(ctx, c.ref, c.second, "")
			require.NoError(t, err)
			assert.Equal(t, c.wantRes, res)
			require.Len(t, e.Items(), 1)
			assert.Equal(t, c.wantQty, e.Items()[0].Quantity)
			assert.Equal(t, c.wantCart, e.TotalQuantity())
			assert.False(t, e.Totals(ctx).Subtotal.IsNegative())

			restored := NewEngine(ctx, cat, st)
			assert.Equal(t, e.Items(), restored.Items())
		})
	}

	t.Run("update to MaxInt on several lines saturates the total", func(t *testing.T) {
		e, cat, st := setupEngine(t)
		mustAdd(t, e, "A", 1, "red")
		mustAdd(t, e, "A", 1, "blue")
		e.UpdateQuantity(ctx, "A", math.MaxInt, "red")
		e.UpdateQuantity(ctx, "A", math.MaxInt, "blue")

		for _, it := range e.Items() {
			assert.Equal(t, math.MaxInt, it.Quantity)
		}
		assert.Equal(t, math.MaxInt, e.TotalQuantity())
		assert.Equal(t, math.MaxInt, e.Snapshot(ctx).TotalQuantity)
		assert.True(t, e.Totals(ctx).Subtotal.IsPositive())

		restored := NewEngine(ctx, cat, st)
		assert.Len(t, restored.Items(), 2)
	})
}

func TestAddItem_CatalogFailure(t *testing.T) {
	e, cat, _ := setupEngine(t)
	cat.err = errors.New("connection refused")

	res, err := e.AddItem(context.Background(), "A", 1, "")
	require.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.Equal(t, AddResult(0), res)
	assert.Empty(t, e.Items())
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("sets exactly", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		mustAdd(t, e, "A", 2, "")
		e.UpdateQuantity(ctx, "A", 7, "")
		assert.Equal(t, 7, e.Items()[0].Quantity)
	})

	t.Run("zero removes", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		mustAdd(t, e, "A", 2, "")
		e.UpdateQuantity(ctx, "A", 0, "")
		assert.Empty(t, e.Items())
	})

	t.Run("negative removes", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		mustAdd(t, e, "A", 2, "")
		e.UpdateQuantity(ctx, "A", -5, "")
		assert.Empty(t, e.Items())
	})

	t.Run("absent key is not created", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		e.UpdateQuantity(ctx, "A", 3, "")
		assert.Empty(t, e.Items())
	})

	t.Run("no stock ceiling", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		mustAdd(t, e, "D", 1, "")
		e.UpdateQuantity(ctx, "D", 50, "")
		assert.Equal(t, 50, e.Items()[0].Quantity)
	})

	t.Run("variant scoped", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		mustAdd(t, e, "A", 1, "red")
		mustAdd(t, e, "A", 1, "blue")
		e.UpdateQuantity(ctx, "A", 0, "red")
		items := e.Items()
		require.Len(t, items, 1)
		assert.Equal(t, "blue", items[0].Variant)
	})
}

func TestRemoveItem_AbsentIsIdempotent(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()
	mustAdd(t, e, "A", 2, "")
	require.True(t, e.ApplyDiscountCode(ctx, "WELCOME10"))

	before, err := e.Encode()
	require.NoError(t, err)
	e.RemoveItem(ctx, "B", "")
	e.RemoveItem(ctx, "A", "red")
	after, err := e.Encode()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	e.RemoveItem(ctx, "A", "")
	assert.Empty(t, e.Items())
}

func TestClear(t *testing.T) {
	e, _, st := setupEngine(t)
	ctx := context.Background()
	mustAdd(t, e, "A", 2, "")
	require.True(t, e.ApplyDiscountCode(ctx, "SUMMER25"))

	e.Clear(ctx)
	assert.Empty(t, e.Items())
	assert.Empty(t, e.DiscountCode())
	assert.True(t, e.Totals(ctx).Total.IsZero())
	assert.JSONEq(t, `{"version":1,"items":[]}`, string(st.data[DefaultKey]))
}

func TestTotals_SummerScenario(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()
	mustAdd(t, e, "A", 2, "")
	mustAdd(t, e, "B", 1, "")

	totals := e.Totals(ctx)
	assert.True(t, dec("28").Equal(totals.Subtotal), "subtotal %s", totals.Subtotal)
	assert.True(t, totals.Discount.IsZero())

	require.True(t, e.ApplyDiscountCode(ctx, "SUMMER25"))
	totals = e.Totals(ctx)
	assert.Equal(t, "7.00", totals.Discount.StringFixed(2))
	assert.Equal(t, "21.00", totals.Total.StringFixed(2))
}

func TestTotals_FollowCatalogPrices(t *testing.T) {
	e, cat, _ := setupEngine(t)
	ctx := context.Background()
	mustAdd(t, e, "A", 2, "")
	cat.put("A", Listing{Price: dec("10"), SalePrice: decPtr("7.5"), InStock: true})
	assert.True(t, dec("15").Equal(e.Totals(ctx).Subtotal))
}

func TestApplyDiscountCode(t *testing.T) {
	ctx := context.Background()

	t.Run("case insensitive", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		assert.True(t, e.ApplyDiscountCode(ctx, "  summer25 "))
		assert.Equal(t, "SUMMER25", e.DiscountCode())
		assert.True(t, e.ApplyDiscountCode(ctx, "FishOn15"))
		assert.Equal(t, "FISHON15", e.DiscountCode())
	})

	// неверный код не сбрасывает ранее применённый
	t.Run("invalid keeps previous", func(t *testing.T) {
		e, _, st := setupEngine(t)
		mustAdd(t, e, "A", 1, "")
		require.True(t, e.ApplyDiscountCode(ctx, "WELCOME10"))
		saves := st.saves

		assert.False(t, e.ApplyDiscountCode(ctx, "BOGUS"))
		assert.Equal(t, "WELCOME10", e.DiscountCode())
		assert.Equal(t, saves, st.saves)
	})

	t.Run("idempotent", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		mustAdd(t, e, "A", 3, "")
		require.True(t, e.ApplyDiscountCode(ctx, "WELCOME10"))
		first := e.Totals(ctx).Discount
		require.True(t, e.ApplyDiscountCode(ctx, "WELCOME10"))
		assert.True(t, first.Equal(e.Totals(ctx).Discount))
	})

	t.Run("remove", func(t *testing.T) {
		e, _, _ := setupEngine(t)
		mustAdd(t, e, "A", 3, "")
		require.True(t, e.ApplyDiscountCode(ctx, "WELCOME10"))
		e.RemoveDiscountCode(ctx)
		assert.Empty(t, e.DiscountCode())
		assert.True(t, e.Totals(ctx).Discount.IsZero())
	})
}

func TestOrphanedItems(t *testing.T) {
	e, cat, _ := setupEngine(t)
	ctx := context.Background()
	mustAdd(t, e, "A", 2, "")
	mustAdd(t, e, "B", 1, "")
	cat.drop("A")

	snap := e.Snapshot(ctx)
	require.Len(t, snap.Lines, 2)
	assert.True(t, snap.Lines[0].Orphaned)
	assert.True(t, snap.Lines[0].LineTotal.IsZero())
	assert.False(t, snap.Lines[1].Orphaned)
	assert.True(t, snap.HasOrphans())
	assert.True(t, dec("8").Equal(snap.Totals.Subtotal))

	orphans := e.Orphans(ctx)
	require.Len(t, orphans, 1)
	assert.Equal(t, "A", orphans[0].ProductRef)
	assert.Len(t, e.Items(), 2)
}

func TestPersistence_RoundTrip(t *testing.T) {
	e, cat, st := setupEngine(t)
	ctx := context.Background()
	mustAdd(t, e, "A", 2, "red")
	mustAdd(t, e, "B", 1, "")
	require.True(t, e.ApplyDiscountCode(ctx, "fishon15"))

	restored := NewEngine(ctx, cat, st)
	assert.Equal(t, e.Items(), restored.Items())
	assert.Equal(t, "FISHON15", restored.DiscountCode())
	assert.True(t, e.Totals(ctx).Total.Equal(restored.Totals(ctx).Total))
}

func TestPersistence_CustomKey(t *testing.T) {
	cat := newFakeCatalog()
	cat.put("A", Listing{Price: dec("1"), InStock: true})
	st := newFakeStore()
	e := NewEngine(context.Background(), cat, st, WithKey("cart:42"))
	mustAdd(t, e, "A", 1, "")

	assert.Contains(t, st.data, "cart:42")
	assert.NotContains(t, st.data, DefaultKey)
}

func TestPersistence_MalformedStartsEmpty(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"items":[`,
		"zero quantity": `{"version":1,"items":[{"productRef":"A","quantity":0}]}`,
		"blank ref":     `{"version":1,"items":[{"productRef":"","quantity":1}]}`,
		"duplicate key": `{"version":1,"items":[{"productRef":"A","quantity":1},{"productRef":"A","quantity":2}]}`,
		"future":        `{"version":9,"items":[]}`,
		"wrong type":    `[1,2,3]`,
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			cat := newFakeCatalog()
			st := newFakeStore()
			st.data[DefaultKey] = []byte(blob)
			e := NewEngine(context.Background(), cat, st)
			assert.Empty(t, e.Items())
			assert.Empty(t, e.DiscountCode())
		})
	}
}

func TestPersistence_LegacyBlobWithoutVersion(t *testing.T) {
	cat := newFakeCatalog()
	st := newFakeStore()
	st.data[DefaultKey] = []byte(`{"items":[{"productRef":"1","quantity":2,"variant":"Silver"}],"discountCode":"WELCOME10"}`)

	e := NewEngine(context.Background(), cat, st)
	require.Len(t, e.Items(), 1)
	assert.Equal(t, LineItem{ProductRef: "1", Quantity: 2, Variant: "Silver"}, e.Items()[0])
	assert.Equal(t, "WELCOME10", e.DiscountCode())
}

func TestPersistence_LegacyCodeIsNormalized(t *testing.T) {
	cat := newFakeCatalog()
	cat.put("A", Listing{Price: dec("10"), InStock: true})
	st := newFakeStore()
	st.data[DefaultKey] = []byte(`{"items":[{"productRef":"A","quantity":4}],"discountCode":" summer25"}`)

	e := NewEngine(context.Background(), cat, st)
	assert.Equal(t, "SUMMER25", e.DiscountCode())
	totals := e.Totals(context.Background())
	assert.True(t, totals.Discount.Equal(dec("10")), totals.Discount.String())
	assert.True(t, totals.Total.Equal(dec("30")), totals.Total.String())
}

func TestPersistence_UnknownCodeIsKeptWithoutDiscount(t *testing.T) {
	cat := newFakeCatalog()
	cat.put("A", Listing{Price: dec("10"), InStock: true})
	st := newFakeStore()
	st.data[DefaultKey] = []byte(`{"version":1,"items":[{"productRef":"A","quantity":1}],"discountCode":"SPRING5"}`)

	e := NewEngine(context.Background(), cat, st)
	assert.Equal(t, "SPRING5", e.DiscountCode())
	assert.True(t, e.Totals(context.Background()).Discount.IsZero())
}

func TestPersistence_LoadFailureStartsEmpty(t *testing.T) {
	st := newFakeStore()
	st.loadErr = errors.New("disk unavailable")
	e := NewEngine(context.Background(), newFakeCatalog(), st)
	assert.Empty(t, e.Items())
}

func TestPersistence_FailureIsRetried(t *testing.T) {
	e, _, st := setupEngine(t)
	st.setSaveErr(errors.New("quota exceeded"))

	mustAdd(t, e, "A", 1, "")
	assert.True(t, e.Dirty())
	assert.Len(t, e.Items(), 1)
	assert.NotContains(t, st.data, DefaultKey)

	st.setSaveErr(nil)
	mustAdd(t, e, "B", 1, "")
	assert.False(t, e.Dirty())

	items, _, err := decodeState(st.data[DefaultKey])
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestFlush(t *testing.T) {
	e, _, st := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Flush(ctx))

	st.setSaveErr(errors.New("read-only"))
	mustAdd(t, e, "A", 1, "")
	require.Error(t, e.Flush(ctx))

	st.setSaveErr(nil)
	require.NoError(t, e.Flush(ctx))
	assert.False(t, e.Dirty())
	assert.Contains(t, st.data, DefaultKey)
}

func TestSubscribe(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	var got []int
	unsubscribe := e.Subscribe(func(s Snapshot) { got = append(got, s.TotalQuantity) })
	var second int
	e.Subscribe(func(Snapshot) { second++ })

	mustAdd(t, e, "A", 1, "")
	mustAdd(t, e, "A", 2, "")
	e.UpdateQuantity(ctx, "A", 10, "")
	assert.False(t, e.ApplyDiscountCode(ctx, "nope"))
	unsubscribe()
	e.Clear(ctx)

	assert.Equal(t, []int{1, 3, 10}, got)
	assert.Equal(t, 4, second)
}

func TestMutationsReturnCommittedSnapshot(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	var notified []Snapshot
	e.Subscribe(func(s Snapshot) { notified = append(notified, s) })

	snap, res, err := e.AddItemSnapshot(ctx, "A", 2, "")
	require.NoError(t, err)
	require.Equal(t, AddAdded, res)
	assert.Equal(t, 2, snap.TotalQuantity)
	assert.True(t, snap.Totals.Total.Equal(dec("20")))
	added := snap

	snap, res, err = e.AddItemSnapshot(ctx, "C", 1, "")
	require.NoError(t, err)
	assert.Equal(t, AddOutOfStock, res)
	assert.Empty(t, snap.Lines)

	snap, ok := e.ApplyDiscountCodeSnapshot(ctx, "welcome10")
	require.True(t, ok)
	assert.Equal(t, "WELCOME10", snap.DiscountCode)
	assert.True(t, snap.Totals.Total.Equal(dec("18")))

	_, ok = e.ApplyDiscountCodeSnapshot(ctx, "nope")
	assert.False(t, ok)

	assert.Equal(t, 5, e.UpdateQuantity(ctx, "A", 5, "").TotalQuantity)
	assert.Empty(t, e.RemoveDiscountCode(ctx).DiscountCode)
	assert.Empty(t, e.RemoveItem(ctx, "A", "").Lines)
	assert.Zero(t, e.Clear(ctx).DistinctItems)

	require.Len(t, notified, 6)
	assert.Equal(t, added, notified[0])
	assert.Equal(t, "WELCOME10", notified[1].DiscountCode)
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	e, _, st := setupEngine(t)
	ctx := context.Background()

	var notified int
	var mu sync.Mutex
	e.Subscribe(func(Snapshot) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.AddItem(ctx, "A", 1, "")
		}()
	}
	wg.Wait()

	require.Len(t, e.Items(), 1)
	assert.Equal(t, 50, e.Items()[0].Quantity)
	assert.Equal(t, 50, notified)

	items, _, err := decodeState(st.data[DefaultKey])
	require.NoError(t, err)
	assert.Equal(t, 50, items[0].Quantity)
}

type countingRecorder struct {
	mutations map[string]int
	failures  int
	last      Snapshot
}

func (r *countingRecorder) Mutation(op, outcome string) { r.mutations[op+":"+outcome]++ }
func (r *countingRecorder) PersistFailed()              { r.failures++ }
func (r *countingRecorder) Recomputed(s Snapshot)       { r.last = s }

func TestRecorder(t *testing.T) {
	cat := newFakeCatalog()
	cat.put("A", Listing{Price: dec("4"), InStock: true})
	st := newFakeStore()
	rec := &countingRecorder{mutations: make(map[string]int)}
	e := NewEngine(context.Background(), cat, st, WithRecorder(rec))

	mustAdd(t, e, "A", 2, "")
	_, _ = e.AddItem(context.Background(), "zzz", 1, "")
	st.setSaveErr(errors.New("boom"))
	e.Clear(context.Background())

	assert.Equal(t, 1, rec.mutations["add:added"])
	assert.Equal(t, 1, rec.mutations["add:not_found"])
	assert.Equal(t, 1, rec.mutations["clear:ok"])
	assert.Equal(t, 1, rec.failures)
	assert.Zero(t, rec.last.TotalQuantity)
}
