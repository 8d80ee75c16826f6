package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultKey ключ, под которым корзина хранится в носителе
const DefaultKey = "cart"

const (
	opAdd            = "add"
	opRemove         = "remove"
	opUpdate         = "update"
	opClear          = "clear"
	opApplyDiscount  = "apply_discount"
	opRemoveDiscount = "remove_discount"
)

// Engine единственное состояние корзины процесса.
//
// Мутации сериализуются mu целиком: проверка, запрос в каталог, изменение,
// пересчёт и запись в носитель. Подписчики вызываются вне mu, но под notifyMu,
// поэтому видят снимки строго в порядке мутаций. Подписчик не должен синхронно
// вызывать мутации движка.
type Engine struct {
	mu    sync.Mutex
	items []LineItem
	code  string
	dirty bool

	notifyMu sync.Mutex

	subsMu  sync.Mutex
	subs    []subscription
	nextSub int

	catalog Catalog
	store   Store
	key     string
	log     *zap.Logger
	rec     Recorder
}

type subscription struct {
	id int
	fn func(Snapshot)
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithKey(key string) Option {
	return func(e *Engine) {
		if key != "" {
			e.key = key
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.rec = r
		}
	}
}

// NewEngine создаёт движок и восстанавливает состояние из носителя.
// Отсутствующее или повреждённое состояние даёт пустую корзину.
func NewEngine(ctx context.Context, catalog Catalog, store Store, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		store:   store,
		key:     DefaultKey,
		log:     zap.NewNop(),
		rec:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.restore(ctx)
	return e
}

func (e *Engine) restore(ctx context.Context) {
	data, ok, err := e.store.Load(ctx, e.key)
	if err != nil {
		e.log.Warn("cart state load failed, starting empty", zap.String("key", e.key), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	items, code, err := decodeState(data)
	if err != nil {
		e.log.Warn("discarding persisted cart state", zap.String("key", e.key), zap.Error(err))
		return
	}
	e.items, e.code = items, code
	e.log.Info("cart state restored", zap.String("key", e.key), zap.Int("items", len(items)))
}

// AddItem добавляет товар или увеличивает количество существующей позиции.
// Если каталог сообщает остаток, суммарное количество не может его превышать.
// Слияние, которое не помещается в int, тоже даёт AddOutOfStock.
func (e *Engine) AddItem(ctx context.Context, ref string, quantity int, variant string) (AddResult, error) {
	_, res, err := e.AddItemSnapshot(ctx, ref, quantity, variant)
	return res, err
}

// AddItemSnapshot как AddItem, но дополнительно возвращает снимок, зафиксированный
// этой мутацией. Если позиция не добавлена, снимок пустой.
func (e *Engine) AddItemSnapshot(ctx context.Context, ref string, quantity int, variant string) (Snapshot, AddResult, error) {
	if strings.TrimSpace(ref) == "" {
		e.rec.Mutation(opAdd, "invalid")
		return Snapshot{}, 0, ErrInvalidProductRef
	}
	if quantity < 1 {
		e.rec.Mutation(opAdd, "invalid")
		return Snapshot{}, 0, ErrInvalidQuantity
	}
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	listing, err := e.catalog.Resolve(ctx, ref)
	if err != nil {
		e.mu.Unlock()
		if errors.Is(err, ErrProductNotFound) {
			e.rec.Mutation(opAdd, AddNotFound.String())
			return Snapshot{}, AddNotFound, nil
		}
		e.rec.Mutation(opAdd, "error")
		return Snapshot{}, 0, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	k := itemKey{ref: ref, variant: variant}
	idx := e.indexLocked(k)
	existing := 0
	if idx >= 0 {
		existing = e.items[idx].Quantity
	}
	fits := quantity <= math.MaxInt-existing
	merged := existing + quantity
	if !fits || !listing.InStock || (listing.StockQuantity != nil && int64(merged) > *listing.StockQuantity) {
		e.mu.Unlock()
		e.rec.Mutation(opAdd, AddOutOfStock.String())
		return Snapshot{}, AddOutOfStock, nil
	}
	if idx >= 0 {
		e.items[idx].Quantity = merged
	} else {
		e.items = append(e.items, LineItem{ProductRef: ref, Quantity: quantity, Variant: variant})
	}
	e.rec.Mutation(opAdd, AddAdded.String())
	return e.commitAndUnlock(ctx), AddAdded, nil
}

// RemoveItem удаляет позицию; отсутствие позиции не ошибка
func (e *Engine) RemoveItem(ctx context.Context, ref, variant string) Snapshot {
	ctx = context.WithoutCancel(ctx)
	e.mu.Lock()
	e.removeLocked(itemKey{ref: ref, variant: variant})
	e.rec.Mutation(opRemove, "ok")
	return e.commitAndUnlock(ctx)
}

// UpdateQuantity задаёт количество ровно. newQuantity <= 0 равносильно RemoveItem.
// Потолок по остатку здесь не проверяется. Для отсутствующей позиции ничего не создаётся.
func (e *Engine) UpdateQuantity(ctx context.Context, ref string, newQuantity int, variant string) Snapshot {
	ctx = context.WithoutCancel(ctx)
	k := itemKey{ref: ref, variant: variant}
	e.mu.Lock()
	if newQuantity <= 0 {
		e.removeLocked(k)
		e.rec.Mutation(opUpdate, "removed")
	} else if idx := e.indexLocked(k); idx >= 0 {
		e.items[idx].Quantity = newQuantity
		e.rec.Mutation(opUpdate, "ok")
	} else {
		e.rec.Mutation(opUpdate, "absent")
	}
	return e.commitAndUnlock(ctx)
}

// Clear сбрасывает позиции и код скидки
func (e *Engine) Clear(ctx context.Context) Snapshot {
	ctx = context.WithoutCancel(ctx)
	e.mu.Lock()
	e.items = nil
	e.code = ""
	e.rec.Mutation(opClear, "ok")
	return e.commitAndUnlock(ctx)
}

// ApplyDiscountCode применяет код из фиксированной таблицы.
// Неизвестный код ничего не меняет: ранее применённый код остаётся.
func (e *Engine) ApplyDiscountCode(ctx context.Context, code string) bool {
	_, ok := e.ApplyDiscountCodeSnapshot(ctx, code)
	return ok
}

// ApplyDiscountCodeSnapshot как ApplyDiscountCode, плюс снимок после применения кода
func (e *Engine) ApplyDiscountCodeSnapshot(ctx context.Context, code string) (Snapshot, bool) {
	canonical, _, ok := LookupDiscount(code)
	if !ok {
		e.rec.Mutation(opApplyDiscount, "rejected")
		return Snapshot{}, false
	}
	ctx = context.WithoutCancel(ctx)
	e.mu.Lock()
	e.code = canonical
	e.rec.Mutation(opApplyDiscount, "ok")
	return e.commitAndUnlock(ctx), true
}

// RemoveDiscountCode снимает применённый код
func (e *Engine) RemoveDiscountCode(ctx context.Context) Snapshot {
	ctx = context.WithoutCancel(ctx)
	e.mu.Lock()
	e.code = ""
	e.rec.Mutation(opRemoveDiscount, "ok")
	return e.commitAndUnlock(ctx)
}

// Totals пересчитывается на каждый вызов, побочных эффектов нет
func (e *Engine) Totals(ctx context.Context) Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(ctx).Totals
}

func (e *Engine) Snapshot(ctx context.Context) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(ctx)
}

// Items копия текущих позиций в порядке добавления
func (e *Engine) Items() []LineItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LineItem, len(e.items))
	copy(out, e.items)
	return out
}

func (e *Engine) DiscountCode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.code
}

// DistinctItems количество различных позиций
func (e *Engine) DistinctItems() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

// TotalQuantity сумма количеств по всем позициям
func (e *Engine) TotalQuantity() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sumQuantity(e.items)
}

// Orphans позиции, которые каталог сейчас не может разрешить
func (e *Engine) Orphans(ctx context.Context) []LineItem {
	snap := e.Snapshot(ctx)
	var out []LineItem
	for _, l := range snap.Lines {
		if l.Orphaned {
			out = append(out, l.LineItem)
		}
	}
	return out
}

// Encode сериализованное состояние в том виде, в каком оно пишется в носитель
func (e *Engine) Encode() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return encodeState(e.items, e.code)
}

// Dirty true, если последняя запись в носитель не удалась
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// Flush повторяет запись, если предыдущая не удалась
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty {
		return nil
	}
	return e.persistLocked(ctx)
}

// Subscribe регистрирует слушателя изменений. Возвращает функцию отписки.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	return func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) listeners() []func(Snapshot) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	out := make([]func(Snapshot), 0, len(e.subs))
	for _, s := range e.subs {
		out = append(out, s.fn)
	}
	return out
}

// commitAndUnlock завершает мутацию: пересчёт, запись в носитель, уведомление.
// Вызывается под mu и отпускает его. Возвращает снимок, который получили подписчики.
func (e *Engine) commitAndUnlock(ctx context.Context) Snapshot {
	snap := e.snapshotLocked(ctx)
	_ = e.persistLocked(ctx)
	e.rec.Recomputed(snap)

	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()
	for _, fn := range e.listeners() {
		fn(snap)
	}
	return snap
}

// persistLocked пишет полное состояние. Ошибка не откатывает состояние в памяти:
// движок помечается dirty, и следующая мутация или Flush перезапишет его целиком.
func (e *Engine) persistLocked(ctx context.Context) error {
	data, err := encodeState(e.items, e.code)
	if err == nil {
		err = e.store.Save(ctx, e.key, data)
	}
	if err != nil {
		e.dirty = true
		e.rec.PersistFailed()
		e.log.Error("cart state persist failed", zap.String("key", e.key), zap.Error(err))
		return err
	}
	if e.dirty {
		e.log.Info("cart state persisted after earlier failure", zap.String("key", e.key))
	}
	e.dirty = false
	return nil
}

// snapshotLocked пересчёт: цена каждой позиции берётся из каталога,
// неразрешённая позиция остаётся в корзине с нулевым вкладом.
func (e *Engine) snapshotLocked(ctx context.Context) Snapshot {
	lines := make([]Line, 0, len(e.items))
	subtotal := decimal.Zero
	for _, it := range e.items {
		line := Line{LineItem: it, UnitPrice: decimal.Zero, LineTotal: decimal.Zero}
		listing, err := e.catalog.Resolve(ctx, it.ProductRef)
		if err != nil {
			if !errors.Is(err, ErrProductNotFound) {
				e.log.Warn("catalog lookup failed", zap.String("product_ref", it.ProductRef), zap.Error(err))
			}
			line.Orphaned = true
			lines = append(lines, line)
			continue
		}
		line.Name = listing.Name
		line.UnitPrice = listing.EffectivePrice()
		line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(line.LineTotal)
		lines = append(lines, line)
	}
	pct := discountPercent(e.code)
	return Snapshot{
		Lines:           lines,
		DiscountCode:    e.code,
		DiscountPercent: pct,
		Totals:          computeTotals(subtotal, pct),
		DistinctItems:   len(e.items),
		TotalQuantity:   sumQuantity(e.items),
	}
}

func (e *Engine) indexLocked(k itemKey) int {
	for i, it := range e.items {
		if it.key() == k {
			return i
		}
	}
	return -1
}

func (e *Engine) removeLocked(k itemKey) {
	if idx := e.indexLocked(k); idx >= 0 {
		e.items = append(e.items[:idx:idx], e.items[idx+1:]...)
	}
}

// sumQuantity насыщается на math.MaxInt: UpdateQuantity потолка не имеет
func sumQuantity(items []LineItem) int {
	n := 0
	for _, it := range items {
		if it.Quantity > math.MaxInt-n {
			return math.MaxInt
		}
		n += it.Quantity
	}
	return n
}
