package tradebook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/etnz/tradebook/date"
)

// DefaultTimeout bounds every repository call made by an Engine.
const DefaultTimeout = 10 * time.Second

// Engine runs the ledger operations over a Repository: lifecycle events,
// netting, allocation, book transfers and positions.
//
// The engine never retries. Every mutation is a single Put or PutMany, so a
// failure leaves the repository as it was.
type Engine struct {
	repo      Repository
	refdata   RefData
	locker    Locker
	listeners []Listener
	log       *zap.Logger
	tracer    trace.Tracer
	timeout   time.Duration
	newID     func() string
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRefData checks assets, books and parties against rd before writes.
func WithRefData(rd RefData) Option { return func(e *Engine) { e.refdata = rd } }

// WithLocker serializes mutations of the same transactions with l.
func WithLocker(l Locker) Option { return func(e *Engine) { e.locker = l } }

// WithListener registers l to be notified after every committed write.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// WithLogger sets the logger, default is a no-op logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithTracer sets the tracer, default is the global one.
func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// WithTimeout bounds repository calls. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

// WithIDs sets the generator of new transaction ids.
func WithIDs(f func() string) Option { return func(e *Engine) { e.newID = f } }

// WithClock sets the clock used for default transaction dates.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine returns an Engine over repo.
func NewEngine(repo Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:    repo,
		log:     zap.NewNop(),
		tracer:  otel.Tracer("github.com/etnz/tradebook"),
		timeout: DefaultTimeout,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create stores tx as a New transaction (version 1). A missing
// TransactionID is generated.
func (e *Engine) Create(ctx context.Context, tx *Transaction) (_ *Transaction, err error) {
	ctx, span := e.start(ctx, "Create", tx.AssetManagerID, tx.TransactionID)
	defer func() { e.end(span, "create", err) }()

	next := tx.Clone()
	if next.TransactionID == "" {
		next.TransactionID = e.newID()
	}
	next.Version = 0
	next.Status = New
	if err := e.check(ctx, next); err != nil {
		return nil, err
	}
	unlock, err := e.lock(ctx, next.AssetManagerID, next.TransactionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	stored, err := e.put(ctx, next, 0)
	if err != nil {
		return nil, err
	}
	e.committed(ctx, "transaction created", stored)
	return stored, nil
}

// Amend stores tx as a new Amended version. tx.Version must be the version
// the caller read, it is checked against the latest stored one. The replaced
// version is kept in history as Superseded.
func (e *Engine) Amend(ctx context.Context, tx *Transaction) (_ *Transaction, err error) {
	ctx, span := e.start(ctx, "Amend", tx.AssetManagerID, tx.TransactionID)
	defer func() { e.end(span, "amend", err) }()

	unlock, err := e.lock(ctx, tx.AssetManagerID, tx.TransactionID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	stored, err := e.amend(ctx, tx)
	if err != nil {
		return nil, err
	}
	e.committed(ctx, "transaction amended", stored)
	return stored, nil
}

func (e *Engine) amend(ctx context.Context, tx *Transaction) (*Transaction, error) {
	latest, err := e.get(ctx, tx.AssetManagerID, tx.TransactionID, 0)
	if err != nil {
		return nil, err
	}
	if latest.Version != tx.Version {
		return nil, &VersionConflictError{AssetManagerID: tx.AssetManagerID, TransactionID: tx.TransactionID, Expected: tx.Version, Actual: latest.Version}
	}
	// the transition is decided on the stored status, not the caller's copy
	next := tx.Clone()
	next.Status = latest.Status
	if err := next.Apply(EventAmend); err != nil {
		return nil, err
	}
	if err := frozen(latest, next); err != nil {
		return nil, err
	}
	if err := e.check(ctx, next); err != nil {
		return nil, err
	}
	return e.put(ctx, next, latest.Version)
}

// Patch lists the fields to change in a partial amendment. Nil fields are
// left untouched, children are merged into the existing ones by label.
type Patch struct {
	CounterpartyBookID  *string
	Quantity            *decimal.Decimal
	Price               *decimal.Decimal
	TransactionCurrency *string
	SettlementCurrency  *string
	TransactionDate     *date.Date
	SettlementDate      *date.Date

	Charges    Children[Charge]
	Codes      Children[Code]
	Comments   Children[Comment]
	Links      Links
	Parties    Children[Party]
	Rates      Children[Rate]
	References Children[Reference]
}

// ApplyTo returns a copy of tx with p applied.
func (p Patch) ApplyTo(tx *Transaction) *Transaction {
	next := tx.Clone()
	if p.CounterpartyBookID != nil {
		next.CounterpartyBookID = *p.CounterpartyBookID
	}
	if p.Quantity != nil {
		next.Quantity = *p.Quantity
	}
	if p.Price != nil {
		next.Price = *p.Price
	}
	if p.TransactionCurrency != nil {
		next.TransactionCurrency = *p.TransactionCurrency
	}
	if p.SettlementCurrency != nil {
		next.SettlementCurrency = *p.SettlementCurrency
	}
	if p.TransactionDate != nil {
		next.TransactionDate = *p.TransactionDate
	}
	if p.SettlementDate != nil {
		next.SettlementDate = *p.SettlementDate
	}
	merge(&next.Charges, p.Charges)
	merge(&next.Codes, p.Codes)
	merge(&next.Comments, p.Comments)
	merge(&next.Parties, p.Parties)
	merge(&next.Rates, p.Rates)
	merge(&next.References, p.References)
	for _, label := range p.Links.Labels() {
		next.Links.Add(label, p.Links[label]...)
	}
	return next
}

func merge[T any](dst *Children[T], src Children[T]) {
	for _, label := range src.Labels() {
		dst.Add(label, src[label]...)
	}
}

// Partial amends the transaction with p applied to the given version (0 for
// the latest).
func (e *Engine) Partial(ctx context.Context, tenant int64, id string, version int, p Patch) (_ *Transaction, err error) {
	ctx, span := e.start(ctx, "Partial", tenant, id)
	defer func() { e.end(span, "partial amend", err) }()

	unlock, err := e.lock(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	base, err := e.get(ctx, tenant, id, version)
	if err != nil {
		return nil, err
	}
	stored, err := e.amend(ctx, p.ApplyTo(base))
	if err != nil {
		return nil, err
	}
	e.committed(ctx, "transaction amended", stored)
	return stored, nil
}

// Cancel moves the latest version of the transaction to Cancelled.
func (e *Engine) Cancel(ctx context.Context, tenant int64, id string) (*Transaction, error) {
	return e.transition(ctx, "Cancel", tenant, id, EventCancel)
}

// Novate moves the latest version of the transaction to Novated.
func (e *Engine) Novate(ctx context.Context, tenant int64, id string) (*Transaction, error) {
	return e.transition(ctx, "Novate", tenant, id, EventNovate)
}

func (e *Engine) transition(ctx context.Context, op string, tenant int64, id string, ev Event) (_ *Transaction, err error) {
	ctx, span := e.start(ctx, op, tenant, id)
	defer func() { e.end(span, string(ev), err) }()

	unlock, err := e.lock(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	latest, err := e.get(ctx, tenant, id, 0)
	if err != nil {
		return nil, err
	}
	next := latest.Clone()
	if err := next.Apply(ev); err != nil {
		return nil, err
	}
	if err := batchError(latest, "cannot be "+strings.ToLower(string(next.Status))); err != nil {
		return nil, err
	}
	stored, err := e.put(ctx, next, latest.Version)
	if err != nil {
		return nil, err
	}
	e.committed(ctx, "transaction "+strings.ToLower(string(stored.Status)), stored)
	return stored, nil
}

// Retrieve returns a version of a transaction, the latest when version is 0.
func (e *Engine) Retrieve(ctx context.Context, tenant int64, id string, version int) (_ *Transaction, err error) {
	ctx, span := e.start(ctx, "Retrieve", tenant, id)
	defer func() { e.end(span, "retrieve", err) }()
	return e.get(ctx, tenant, id, version)
}

// Transactions returns the latest version of every transaction of tenant.
func (e *Engine) Transactions(ctx context.Context, tenant int64) (_ []*Transaction, err error) {
	ctx, span := e.start(ctx, "Transactions", tenant, "")
	defer func() { e.end(span, "list", err) }()
	ctx, cancel := e.bound(ctx)
	defer cancel()
	txs, err := e.repo.List(ctx, tenant)
	return txs, repositoryError(tenant, "list", err)
}

// Clear deletes the tenant's transactions, restricted to bookIDs if any. It
// bypasses the lifecycle and is meant for administration.
func (e *Engine) Clear(ctx context.Context, tenant int64, bookIDs ...string) (_ int, err error) {
	ctx, span := e.start(ctx, "Clear", tenant, "")
	defer func() { e.end(span, "clear", err) }()
	ctx, cancel := e.bound(ctx)
	defer cancel()
	n, err := e.repo.Clear(ctx, tenant, bookIDs...)
	if err != nil {
		return 0, repositoryError(tenant, "clear", err)
	}
	e.log.Warn("transactions cleared", zap.Int64("asset_manager_id", tenant), zap.Strings("books", bookIDs), zap.Int("count", n))
	return n, nil
}

// today returns the engine's current date.
func (e *Engine) today() date.Date {
	t := e.now()
	return date.New(t.Year(), t.Month(), t.Day())
}

// bound applies the repository timeout to ctx.
func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Engine) get(ctx context.Context, tenant int64, id string, version int) (*Transaction, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	tx, err := e.repo.Get(ctx, tenant, id, version)
	return tx, repositoryError(tenant, "get", err)
}

func (e *Engine) put(ctx context.Context, tx *Transaction, expected int) (*Transaction, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	stored, err := e.repo.Put(ctx, tx.AssetManagerID, tx, expected)
	return stored, repositoryError(tx.AssetManagerID, "put", err)
}

func (e *Engine) putMany(ctx context.Context, tenant int64, txs []*Transaction, expected []int) ([]*Transaction, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	stored, err := e.repo.PutMany(ctx, tenant, txs, expected)
	return stored, repositoryError(tenant, "put many", err)
}

// lock acquires the locks of the transactions, when a Locker is configured.
// A busy lock is reported as a VersionConflictError.
func (e *Engine) lock(ctx context.Context, tenant int64, ids ...string) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = LockKey(tenant, id)
	}
	unlock, err := e.locker.TryLock(ctx, keys...)
	if errors.Is(err, ErrLocked) {
		return nil, &VersionConflictError{AssetManagerID: tenant, TransactionID: strings.Join(ids, ","), Locked: true}
	}
	if err != nil {
		return nil, fmt.Errorf("cannot lock %d/%s: %w", tenant, strings.Join(ids, ","), err)
	}
	return unlock, nil
}

// check validates tx and its references.
func (e *Engine) check(ctx context.Context, tx *Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if e.refdata == nil {
		return nil
	}
	type ref struct {
		kind  Kind
		id    string
		field string
	}
	refs := []ref{
		{KindAsset, tx.AssetID, "asset_id"},
		{KindBook, tx.AssetBookID, "asset_book_id"},
	}
	if tx.CounterpartyBookID != "" {
		refs = append(refs, ref{KindBook, tx.CounterpartyBookID, "counterparty_book_id"})
	}
	for _, label := range tx.Parties.Labels() {
		for _, p := range tx.Parties[label] {
			if p.Active {
				refs = append(refs, ref{KindParty, p.PartyID, "parties." + label})
			}
		}
	}
	for _, r := range refs {
		ok, err := e.refdata.ExistsActive(ctx, tx.AssetManagerID, r.kind, r.id)
		if err != nil {
			return fmt.Errorf("cannot check %s %s: %w", r.kind, r.id, err)
		}
		if !ok {
			return &ValidationError{AssetManagerID: tx.AssetManagerID, TransactionID: tx.TransactionID, Field: r.field, Reason: fmt.Sprintf("%s %s is not active", r.kind, r.id)}
		}
	}
	return nil
}

// committed logs and notifies listeners of stored transactions.
func (e *Engine) committed(ctx context.Context, msg string, txs ...*Transaction) {
	for _, tx := range txs {
		e.log.Info(msg,
			zap.Int64("asset_manager_id", tx.AssetManagerID),
			zap.String("transaction_id", tx.TransactionID),
			zap.Int("version", tx.Version),
			zap.String("status", string(tx.Status)),
		)
	}
	for _, l := range e.listeners {
		l.Committed(ctx, txs)
	}
}

func (e *Engine) start(ctx context.Context, op string, tenant int64, id string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.Int64("tradebook.asset_manager_id", tenant)}
	if id != "" {
		attrs = append(attrs, attribute.String("tradebook.transaction_id", id))
	}
	return e.tracer.Start(ctx, "tradebook."+op, trace.WithAttributes(attrs...))
}

func (e *Engine) end(span trace.Span, op string, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op+": "+err.Error())
	e.log.Warn(op+" rejected", zap.Error(err))
}
