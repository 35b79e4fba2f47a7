package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"bollette/internal/amqp"
	"bollette/internal/core"
	"bollette/internal/storage"
)

// memStore is an in-memory BillStore and LedgerStore.
type memStore struct {
	mu           sync.Mutex
	bills        map[string]core.Bill
	categories   map[string]core.Category
	payments     []core.Payment
	transactions map[string]core.Transaction
	totals       map[string]core.Money
	failPayBill  error
}

func newMemStore() *memStore {
	return &memStore{
		bills:        make(map[string]core.Bill),
		categories:   make(map[string]core.Category),
		transactions: make(map[string]core.Transaction),
		totals:       make(map[string]core.Money),
	}
}

func (m *memStore) CreateBill(_ context.Context, b core.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.bills {
		if other.OwnerID == b.OwnerID && strings.EqualFold(other.Name, b.Name) {
			return storage.ErrConflict
		}
	}
	m.bills[b.ID] = b
	return nil
}

func (m *memStore) GetBill(_ context.Context, ownerID, id string) (core.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok || b.OwnerID != ownerID {
		return core.Bill{}, core.NotFound("bill", id)
	}
	return b, nil
}

func (m *memStore) UpdateBill(_ context.Context, b core.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[b.ID]; !ok {
		return core.NotFound("bill", b.ID)
	}
	for id, other := range m.bills {
		if id != b.ID && other.OwnerID == b.OwnerID && strings.EqualFold(other.Name, b.Name) {
			return storage.ErrConflict
		}
	}
	m.bills[b.ID] = b
	return nil
}

func (m *memStore) DeleteBill(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok || b.OwnerID != ownerID {
		return core.NotFound("bill", id)
	}
	delete(m.bills, id)
	return nil
}

func (m *memStore) ListBills(_ context.Context, ownerID string) ([]core.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Bill
	for _, b := range m.bills {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (m *memStore) ListBillsPage(ctx context.Context, ownerID string, p core.PageParams) (core.Page[core.Bill], error) {
	bills, _ := m.ListBills(ctx, ownerID)
	return core.Paginate(bills, p.Normalize()), nil
}

func (m *memStore) CreateCategory(_ context.Context, c core.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.categories {
		if other.OwnerID == c.OwnerID && strings.EqualFold(other.Name, c.Name) {
			return storage.ErrConflict
		}
	}
	m.categories[c.ID] = c
	return nil
}

func (m *memStore) GetCategory(_ context.Context, ownerID, id string) (core.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok || c.OwnerID != ownerID {
		return core.Category{}, core.NotFound("category", id)
	}
	return c, nil
}

func (m *memStore) GetPaymentsInRange(_ context.Context, ownerID, billID string, start, end core.Date) ([]core.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Payment
	for _, p := range m.payments {
		if p.OwnerID == ownerID && p.BillID == billID && p.OccurrenceDate.Between(start, end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ListPaymentsForOwner(_ context.Context, ownerID string, start, end core.Date) ([]core.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Payment
	for _, p := range m.payments {
		if p.OwnerID != ownerID {
			continue
		}
		if (!start.IsZero() && p.OccurrenceDate.Before(start)) || (!end.IsZero() && p.OccurrenceDate.After(end)) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) CreatePayment(_ context.Context, p core.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPaymentLocked(p)
}

func (m *memStore) insertPaymentLocked(p core.Payment) error {
	for _, other := range m.payments {
		if other.BillID == p.BillID && other.OccurrenceDate.String() == p.OccurrenceDate.String() {
			return storage.ErrConflict
		}
	}
	m.payments = append(m.payments, p)
	return nil
}

func (m *memStore) PayBill(_ context.Context, p storage.PayBillParams) (core.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPayBill != nil {
		return core.Money{}, m.failPayBill
	}
	for _, other := range m.payments {
		if other.BillID == p.Payment.BillID && other.OccurrenceDate.String() == p.Payment.OccurrenceDate.String() {
			return core.Money{}, storage.ErrConflict
		}
	}

	m.transactions[p.Transaction.ID] = p.Transaction
	var total core.Money
	for _, tx := range m.transactions {
		if tx.CategoryID == p.Transaction.CategoryID {
			total = total.Add(tx.Amount)
		}
	}
	m.totals[p.Transaction.CategoryID] = total
	m.payments = append(m.payments, p.Payment)
	return total, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []amqp.BillPaidMessage
	err  error
}

func (p *recordingPublisher) PublishBillPaid(_ context.Context, msg amqp.BillPaidMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

var errBroker = errors.New("broker unavailable")

const testOwner = "owner-1"

func at(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func seedBill(id, name, rule string, dtstart time.Time, cents int64) core.Bill {
	return core.Bill{
		ID:         id,
		OwnerID:    testOwner,
		Name:       name,
		Amount:     core.Money{Cents: cents},
		Emoji:      "💡",
		CategoryID: "cat-1",
		Rule:       rule,
		DTStart:    dtstart,
	}
}
