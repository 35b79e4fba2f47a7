package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bollette/internal/cache"
	"bollette/internal/core"
	"bollette/internal/log"
	"bollette/internal/metrics"
	"bollette/internal/recurrence"
	"bollette/internal/storage"
)

var errCategoryExists = errors.New("a category with this name already exists")

// BillStore is the persistence the bill service needs.
type BillStore interface {
	CreateBill(ctx context.Context, b core.Bill) error
	GetBill(ctx context.Context, ownerID, id string) (core.Bill, error)
	UpdateBill(ctx context.Context, b core.Bill) error
	DeleteBill(ctx context.Context, ownerID, id string) error
	ListBills(ctx context.Context, ownerID string) ([]core.Bill, error)
	ListBillsPage(ctx context.Context, ownerID string, p core.PageParams) (core.Page[core.Bill], error)
	CreateCategory(ctx context.Context, c core.Category) error
	GetCategory(ctx context.Context, ownerID, id string) (core.Category, error)
	GetPaymentsInRange(ctx context.Context, ownerID, billID string, start, end core.Date) ([]core.Payment, error)
	ListPaymentsForOwner(ctx context.Context, ownerID string, start, end core.Date) ([]core.Payment, error)
}

// BillServiceConfig tunes the bill service.
type BillServiceConfig struct {
	// DueSoonDays is used when a caller passes no horizon (default 5).
	DueSoonDays int
	// CacheSize and CacheTTL bound the summary cache; zero disables it.
	CacheSize int
	CacheTTL  time.Duration
}

// BillService is the use-case surface over bills, payments and summaries.
type BillService struct {
	store       BillStore
	ledger      *LedgerService
	clock       core.Clock
	summaries   cache.Cache[core.Summary]
	dueSoonDays int
	logger      *log.Logger
}

func NewBillService(store BillStore, ledger *LedgerService, clock core.Clock, cfg BillServiceConfig) *BillService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	days := cfg.DueSoonDays
	if days == 0 {
		days = core.DefaultDueSoonDays
	}
	s := &BillService{
		store:       store,
		ledger:      ledger,
		clock:       clock,
		dueSoonDays: core.ClampDueSoonDays(days),
		logger:      log.ForComponent(log.ComponentBills),
	}
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		s.summaries = cache.NewLRUCache[core.Summary](cfg.CacheSize, cfg.CacheTTL)
	}
	return s
}

// SummaryCache exposes the cache so callers can register it for cleanup.
// It returns nil when caching is disabled.
func (s *BillService) SummaryCache() cache.Cleaner {
	if c, ok := s.summaries.(cache.Cleaner); ok {
		return c
	}
	return nil
}

// CreateBill validates the input, checks the category and stores a new bill.
func (s *BillService) CreateBill(ctx context.Context, ownerID string, in core.BillInput) (core.Bill, error) {
	b, verr := in.ToBill()
	validateRule(b, verr)
	if err := verr.OrNil(); err != nil {
		return core.Bill{}, err
	}
	if _, err := s.store.GetCategory(ctx, ownerID, b.CategoryID); err != nil {
		return core.Bill{}, err
	}

	now := s.clock.Now()
	b.ID = uuid.NewString()
	b.OwnerID = ownerID
	b.CreatedAt, b.UpdatedAt = now, now

	if err := s.store.CreateBill(ctx, b); err != nil {
		return core.Bill{}, billWriteError(err)
	}

	s.invalidate(ownerID)
	metrics.IncBillOperation(log.OpCreate)
	s.logger.InfoContext(ctx, "Bill created",
		log.NewFields().WithBill(ownerID, b.ID, b.Name, b.Amount.Cents).ToSlice()...)
	return b, nil
}

// UpdateBill applies a partial update. The merged bill is validated as a
// whole, so a patch that only moves dtstart past until is rejected.
func (s *BillService) UpdateBill(ctx context.Context, ownerID, id string, patch core.BillPatch) (core.Bill, error) {
	current, err := s.store.GetBill(ctx, ownerID, id)
	if err != nil {
		return core.Bill{}, err
	}

	merged, verr := current.Apply(patch)
	core.ValidateBill(merged, verr)
	validateRule(merged, verr)
	if err := verr.OrNil(); err != nil {
		return core.Bill{}, err
	}
	if merged.CategoryID != current.CategoryID {
		if _, err := s.store.GetCategory(ctx, ownerID, merged.CategoryID); err != nil {
			return core.Bill{}, err
		}
	}

	merged.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateBill(ctx, merged); err != nil {
		return core.Bill{}, billWriteError(err)
	}

	s.invalidate(ownerID)
	metrics.IncBillOperation(log.OpUpdate)
	s.logger.InfoContext(ctx, "Bill updated",
		log.NewFields().WithBill(ownerID, id, merged.Name, merged.Amount.Cents).ToSlice()...)
	return merged, nil
}

// DeleteBill removes a bill. Its payments stay as history.
func (s *BillService) DeleteBill(ctx context.Context, ownerID, id string) error {
	if err := s.store.DeleteBill(ctx, ownerID, id); err != nil {
		return err
	}
	s.invalidate(ownerID)
	metrics.IncBillOperation(log.OpDelete)
	s.logger.InfoContext(ctx, "Bill deleted", log.FieldOwnerID, ownerID, log.FieldBillID, id)
	return nil
}

func (s *BillService) GetBill(ctx context.Context, ownerID, id string) (core.Bill, error) {
	return s.store.GetBill(ctx, ownerID, id)
}

// ListBills returns one page of the owner's bills.
func (s *BillService) ListBills(ctx context.Context, ownerID string, p core.PageParams) (core.Page[core.Bill], error) {
	return s.store.ListBillsPage(ctx, ownerID, p.Normalize())
}

// GetSummary classifies the owner's bills. dueSoonDays <= 0 selects the
// configured default; other values are clamped to [1, 31].
func (s *BillService) GetSummary(ctx context.Context, ownerID string, offset *core.Offset, dueSoonDays int) (core.Summary, error) {
	days := s.horizon(dueSoonDays)
	now := s.clock.Now()
	key := summaryKey(ownerID, now, offset, days)

	if s.summaries != nil {
		if sum, ok := s.summaries.Get(key); ok {
			metrics.IncSummaryCache(true)
			return sum, nil
		}
		metrics.IncSummaryCache(false)
	}

	c, err := s.classify(ctx, ownerID, now, offset, days)
	if err != nil {
		return core.Summary{}, err
	}
	if s.summaries != nil {
		s.summaries.Set(key, c.Summary)
	}
	return c.Summary, nil
}

// GetTotalAmount sums the amounts of the bills active in the window.
func (s *BillService) GetTotalAmount(ctx context.Context, ownerID string, offset *core.Offset) (core.Money, error) {
	sum, err := s.GetSummary(ctx, ownerID, offset, 0)
	if err != nil {
		return core.Money{}, err
	}
	return sum.Upcoming.Amount, nil
}

// GetBucket returns the aggregate of one bucket plus a page of its bills.
// Search, sort and pagination apply to the list only.
func (s *BillService) GetBucket(ctx context.Context, bucket core.Bucket, ownerID string, p core.PageParams, offset *core.Offset, dueSoonDays int) (core.BucketPage, error) {
	if _, err := GetBucketStrategy(bucket); err != nil {
		return core.BucketPage{}, core.NewValidationError("bucket", err)
	}

	c, err := s.classify(ctx, ownerID, s.clock.Now(), offset, s.horizon(dueSoonDays))
	if err != nil {
		return core.BucketPage{}, err
	}

	p = p.Normalize()
	members := filterByName(c.Members(bucket), p.Query)
	sortBills(members, p.Sort, p.Order)

	totals := c.Summary.Totals(bucket)
	return core.BucketPage{
		Count:  totals.Count,
		Amount: totals.Amount,
		List:   core.Paginate(members, p),
	}, nil
}

// RecordPayment records a payment without a ledger entry.
func (s *BillService) RecordPayment(ctx context.Context, ownerID, billID string, in core.PaymentInput) (core.Payment, error) {
	p, err := s.ledger.RecordPayment(ctx, ownerID, billID, in)
	if err != nil {
		return core.Payment{}, err
	}
	s.invalidate(ownerID)
	return p, nil
}

// CreateTransactionFromBill pays an occurrence and writes its ledger entry.
func (s *BillService) CreateTransactionFromBill(ctx context.Context, ownerID, billID string, in core.PaymentInput) (core.PaymentResult, error) {
	res, err := s.ledger.CreateTransactionFromBill(ctx, ownerID, billID, in)
	if err != nil {
		return core.PaymentResult{}, err
	}
	s.invalidate(ownerID)
	return res, nil
}

// ListPayments returns a bill's payments with an occurrence date in
// [from, to]. Zero bounds default to the bill's start and no upper limit.
func (s *BillService) ListPayments(ctx context.Context, ownerID, billID string, from, to core.Date) ([]core.Payment, error) {
	bill, err := s.store.GetBill(ctx, ownerID, billID)
	if err != nil {
		return nil, err
	}
	if from.IsZero() {
		from = core.DateOf(bill.DTStart)
	}
	if to.IsZero() {
		to = core.NewDate(9999, 12, 31)
	}
	if to.Before(from) {
		return nil, core.NewValidationError("to", errors.New("to must not be before from"))
	}
	payments, err := s.store.GetPaymentsInRange(ctx, ownerID, billID, from, to)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []core.Payment{}
	}
	return payments, nil
}

// Occurrences lists the bill's occurrence dates in the window, each with
// its payment when one was recorded. The window defaults to
// [dtstart, now].
func (s *BillService) Occurrences(ctx context.Context, ownerID, billID string, offset *core.Offset) ([]core.Occurrence, error) {
	bill, err := s.store.GetBill(ctx, ownerID, billID)
	if err != nil {
		return nil, err
	}
	sched, err := recurrence.ForBill(bill)
	if err != nil {
		return nil, core.NewValidationError("rule", err)
	}

	var rangeStart, rangeEnd *time.Time
	if offset != nil {
		rangeStart, rangeEnd = offset.Start, offset.End
	}
	dates := sched.Window(rangeStart, rangeEnd, s.clock.Now())
	occurrences := make([]core.Occurrence, 0, len(dates))
	if len(dates) == 0 {
		return occurrences, nil
	}

	payments, err := s.store.GetPaymentsInRange(ctx, ownerID, billID, core.DateOf(dates[0]), core.DateOf(dates[len(dates)-1]))
	if err != nil {
		return nil, err
	}
	paid := make(map[string]core.Payment, len(payments))
	for _, p := range payments {
		paid[p.OccurrenceDate.String()] = p
	}

	for _, d := range dates {
		o := core.Occurrence{Date: core.DateOf(d)}
		if p, ok := paid[o.Date.String()]; ok {
			o.Payment = &p
		}
		occurrences = append(occurrences, o)
	}
	return occurrences, nil
}

// CreateCategory stores a category for the owner.
func (s *BillService) CreateCategory(ctx context.Context, ownerID string, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Emoji = strings.TrimSpace(c.Emoji)
	if c.Kind == "" {
		c.Kind = core.CategoryBudget
	}
	if err := core.ValidateCategory(c); err != nil {
		return core.Category{}, err
	}

	c.ID = uuid.NewString()
	c.OwnerID = ownerID
	c.CreatedAt = s.clock.Now()
	if err := s.store.CreateCategory(ctx, c); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return core.Category{}, core.NewValidationError("name", errCategoryExists)
		}
		return core.Category{}, err
	}
	return c, nil
}

// classify loads bills and payments concurrently and classifies them.
func (s *BillService) classify(ctx context.Context, ownerID string, now time.Time, offset *core.Offset, days int) (Classification, error) {
	start := time.Now()

	var (
		bills    []core.Bill
		payments []core.Payment
	)
	from, to := core.Date{}, core.DateOf(now)
	if offset != nil && offset.Start != nil {
		from = core.DateOf(*offset.Start)
	}
	if offset != nil && offset.End != nil {
		to = core.DateOf(*offset.End)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bills, err = s.store.ListBills(gctx, ownerID)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.store.ListPaymentsForOwner(gctx, ownerID, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return Classification{}, fmt.Errorf("load bills for summary: %w", err)
	}

	c := Classify(bills, payments, now, days, offset)
	for _, skipped := range c.Skipped {
		s.logger.WarnContext(ctx, "Skipping bill with invalid recurrence rule",
			log.FieldOwnerID, ownerID,
			log.FieldBillID, skipped.BillID,
			log.FieldError, skipped.Err)
	}
	metrics.AddSkippedBills(len(c.Skipped))
	metrics.ObserveSummary(time.Since(start))
	return c, nil
}

func (s *BillService) horizon(days int) int {
	if days <= 0 {
		return s.dueSoonDays
	}
	return core.ClampDueSoonDays(days)
}

func (s *BillService) invalidate(ownerID string) {
	if s.summaries != nil {
		s.summaries.DeletePrefix(ownerID + "|")
	}
}

func summaryKey(ownerID string, now time.Time, offset *core.Offset, days int) string {
	start, end := "-", "-"
	if offset != nil && offset.Start != nil {
		start = offset.Start.UTC().Format(time.RFC3339)
	}
	if offset != nil && offset.End != nil {
		end = offset.End.UTC().Format(time.RFC3339)
	}
	// Without an explicit end the window closes at now, so the key tracks
	// the minute.
	return fmt.Sprintf("%s|%s|%s|%s|%d", ownerID, now.UTC().Format("2006-01-02T15:04"), start, end, days)
}

// validateRule checks that the rule parses and, when the dates are usable,
// that dtstart is its first occurrence.
func validateRule(b core.Bill, verr *core.ValidationError) {
	if b.Rule == "" {
		return
	}
	r, err := recurrence.Parse(b.Rule)
	if err != nil {
		verr.Add("rule", err)
		return
	}
	if b.DTStart.IsZero() || (b.Until != nil && !b.Until.After(b.DTStart)) {
		return
	}
	sched, err := r.Anchor(b.DTStart, b.Until)
	if err != nil {
		verr.Add("rule", err)
		return
	}
	if !sched.StartsOnAnchor() {
		verr.Add("rule", core.ErrStartNotOccurrence)
	}
}

func billWriteError(err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return core.NewValidationError("name", core.ErrDuplicateName)
	}
	return err
}

func filterByName(bills []core.Bill, query string) []core.Bill {
	if query == "" {
		return bills
	}
	q := strings.ToLower(query)
	var out []core.Bill
	for _, b := range bills {
		if strings.Contains(strings.ToLower(b.Name), q) {
			out = append(out, b)
		}
	}
	return out
}

func sortBills(bills []core.Bill, key, order string) {
	less := func(a, b core.Bill) int {
		switch key {
		case core.SortAmount:
			return cmp.Compare(a.Amount.Cents, b.Amount.Cents)
		case core.SortDTStart:
			return a.DTStart.Compare(b.DTStart)
		case core.SortCreatedAt:
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
	}
	sort.SliceStable(bills, func(i, j int) bool {
		c := less(bills[i], bills[j])
		if c == 0 {
			return bills[i].ID < bills[j].ID
		}
		if order == "desc" {
			return c > 0
		}
		return c < 0
	})
}

