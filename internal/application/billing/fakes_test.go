package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kitabu/billing-api/internal/application/dto"
	"github.com/kitabu/billing-api/internal/domain"
	"github.com/kitabu/billing-api/internal/domain/entity"
	"github.com/kitabu/billing-api/internal/domain/repository"
	"github.com/kitabu/billing-api/pkg/logger"

	"github.com/shopspring/decimal"
)

// In-memory repositories for the use case tests. They honor the same
// contracts as the postgres adapters: nil on missing, conditional updates
// reporting affected rows, unique invoice numbers, one reminder per
// (invoice, kind).

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Env: "test", Level: "error"})
}

func testIssuer() IssuerProfile {
	return IssuerProfile{
		Name:          "Kitabu Studio",
		Email:         "billing@kitabu.example",
		InvoicePrefix: "KS",
		PortalBaseURL: "https://pay.kitabu.example",
	}
}

func testTaxes() TaxPolicy {
	return TaxPolicy{Rates: map[string]decimal.Decimal{
		"KES": decimal.RequireFromString("1.5"),
	}}
}

// ── invoice repository ────────────────────────────────────────────────────────

type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*entity.Invoice
	items    map[string][]*entity.InvoiceItem
}

var _ repository.InvoiceRepository = (*memInvoiceRepo)(nil)

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{
		invoices: make(map[string]*entity.Invoice),
		items:    make(map[string][]*entity.InvoiceItem),
	}
}

func (m *memInvoiceRepo) Create(_ context.Context, inv *entity.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.invoices {
		if ex.Number == inv.Number {
			return fmt.Errorf("%w: invoice number %s", domain.ErrDuplicate, inv.Number)
		}
	}
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *memInvoiceRepo) CreateItem(_ context.Context, item *entity.InvoiceItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	m.items[item.InvoiceID] = append(m.items[item.InvoiceID], &cp)
	return nil
}

func (m *memInvoiceRepo) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvoiceRepo) GetByToken(_ context.Context, token string) (*entity.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invoices {
		if inv.AccessToken == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memInvoiceRepo) GetByPaymentRef(_ context.Context, ref string) (*entity.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invoices {
		if inv.PaymentRef == ref {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memInvoiceRepo) GetItems(_ context.Context, invoiceID string) ([]*entity.InvoiceItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.InvoiceItem(nil), m.items[invoiceID]...), nil
}

func (m *memInvoiceRepo) ListByUser(_ context.Context, userID string) ([]*entity.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Invoice
	for _, inv := range m.invoices {
		if inv.UserID == userID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memInvoiceRepo) MarkPaid(_ context.Context, id, method, externalRef string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || !inv.Status.Payable() {
		return false, nil
	}
	inv.Status = entity.InvoiceStatusPaid
	inv.PaymentMethod = method
	inv.PaymentRef = externalRef
	inv.PaidAt = &paidAt
	inv.UpdatedAt = paidAt
	return true, nil
}

func (m *memInvoiceRepo) MarkOverdue(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.Status != entity.InvoiceStatusSent {
		return false, nil
	}
	inv.Status = entity.InvoiceStatusOverdue
	return true, nil
}

func (m *memInvoiceRepo) Cancel(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.Status.Terminal() {
		return false, nil
	}
	inv.Status = entity.InvoiceStatusCancelled
	return true, nil
}

func (m *memInvoiceRepo) SetPaymentRef(_ context.Context, id, method, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	inv.PaymentMethod = method
	inv.PaymentRef = ref
	return nil
}

func (m *memInvoiceRepo) RecordView(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	inv.ViewCount++
	inv.LastViewedAt = &at
	return nil
}

// ── template repository ───────────────────────────────────────────────────────

type memTemplateRepo struct {
	mu        sync.Mutex
	templates map[string]*entity.RecurringTemplate
}

var _ repository.RecurringTemplateRepository = (*memTemplateRepo)(nil)

func newMemTemplateRepo() *memTemplateRepo {
	return &memTemplateRepo{templates: make(map[string]*entity.RecurringTemplate)}
}

func (m *memTemplateRepo) Create(_ context.Context, tpl *entity.RecurringTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tpl
	m.templates[tpl.ID] = &cp
	return nil
}

func (m *memTemplateRepo) GetByID(_ context.Context, id string) (*entity.RecurringTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *tpl
	return &cp, nil
}

func (m *memTemplateRepo) ListByUser(_ context.Context, userID string) ([]*entity.RecurringTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.RecurringTemplate
	for _, tpl := range m.templates {
		if tpl.UserID == userID {
			cp := *tpl
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTemplateRepo) ListDue(_ context.Context, now time.Time) ([]*entity.RecurringTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.RecurringTemplate
	for _, tpl := range m.templates {
		if !tpl.IsActive || tpl.NextDueDate.After(now) {
			continue
		}
		if tpl.EndDate != nil && tpl.NextDueDate.After(*tpl.EndDate) {
			continue
		}
		cp := *tpl
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memTemplateRepo) ClaimAndAdvance(_ context.Context, id string, prevDue, nextDue, generatedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok || !tpl.IsActive || !tpl.NextDueDate.Equal(prevDue) {
		return false, nil
	}
	tpl.NextDueDate = nextDue
	tpl.TotalGenerated++
	at := generatedAt
	tpl.LastGeneratedAt = &at
	return true, nil
}

func (m *memTemplateRepo) Deactivate(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok || !tpl.IsActive {
		return false, nil
	}
	tpl.IsActive = false
	return true, nil
}

// ── reminder repository ───────────────────────────────────────────────────────

type memReminderRepo struct {
	mu        sync.Mutex
	reminders map[string]*entity.PaymentReminder
}

var _ repository.PaymentReminderRepository = (*memReminderRepo)(nil)

func newMemReminderRepo() *memReminderRepo {
	return &memReminderRepo{reminders: make(map[string]*entity.PaymentReminder)}
}

func (m *memReminderRepo) Create(_ context.Context, r *entity.PaymentReminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.reminders {
		if ex.InvoiceID == r.InvoiceID && ex.Kind == r.Kind {
			return nil // conflict is a silent no-op
		}
	}
	cp := *r
	m.reminders[r.ID] = &cp
	return nil
}

func (m *memReminderRepo) ListDue(_ context.Context, now time.Time) ([]*entity.PaymentReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.PaymentReminder
	for _, r := range m.reminders {
		if r.Status == entity.ReminderStatusPending && !r.ScheduledFor.After(now) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memReminderRepo) ListByInvoice(_ context.Context, invoiceID string) ([]*entity.PaymentReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.PaymentReminder
	for _, r := range m.reminders {
		if r.InvoiceID == invoiceID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memReminderRepo) CancelAllPending(_ context.Context, invoiceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reminders {
		if r.InvoiceID == invoiceID && r.Status == entity.ReminderStatusPending {
			r.Status = entity.ReminderStatusCancelled
			n++
		}
	}
	return n, nil
}

func (m *memReminderRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = entity.ReminderStatusSent
	r.Attempts++
	r.UpdatedAt = at
	return nil
}

func (m *memReminderRepo) RecordFailure(_ context.Context, id string, errMsg string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Attempts++
	r.ErrorMessage = errMsg
	if terminal {
		r.Status = entity.ReminderStatusFailed
	}
	return nil
}

func (m *memReminderRepo) MarkCancelled(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = entity.ReminderStatusCancelled
	return nil
}

// ── tx runner and gateways ────────────────────────────────────────────────────

// memTxRunner satisfies TxRunner without transactional semantics; the
// repositories above are consistent enough for the use case contracts under
// test.
type memTxRunner struct {
	invoices  *memInvoiceRepo
	templates *memTemplateRepo
	reminders *memReminderRepo
}

var _ TxRunner = (*memTxRunner)(nil)

func (t *memTxRunner) Run(_ context.Context, fn func(
	repository.InvoiceRepository,
	repository.RecurringTemplateRepository,
	repository.PaymentReminderRepository,
) error) error {
	return fn(t.invoices, t.templates, t.reminders)
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []string // invoice numbers
	fail error
}

var _ ReminderDispatcher = (*fakeDispatcher)(nil)

func (d *fakeDispatcher) SendReminder(_ context.Context, inv *entity.Invoice, _ *entity.PaymentReminder) error {
	if d.fail != nil {
		return d.fail
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, inv.Number)
	return nil
}

type fakeMpesa struct {
	checkoutID string
	err        error
	lastPhone  string
	lastAmount int64
}

var _ MpesaGateway = (*fakeMpesa)(nil)

func (g *fakeMpesa) InitiateSTKPush(_ context.Context, phone string, amountMinor int64, _, _ string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.lastPhone = phone
	g.lastAmount = amountMinor
	return g.checkoutID, nil
}

type fakePaystack struct {
	authURL   string
	err       error
	validSig  string
	lastEmail string
}

var _ PaystackGateway = (*fakePaystack)(nil)

func (g *fakePaystack) InitializeTransaction(_ context.Context, email string, _ int64, _, _ string, _ map[string]string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.lastEmail = email
	return g.authURL, nil
}

func (g *fakePaystack) VerifySignature(_ []byte, signature string) bool {
	return signature == g.validSig
}

type fakeRenderer struct {
	mu       sync.Mutex
	failures int // fail this many renders before succeeding
	renders  int
	disposes int
	out      []byte
}

var _ DocumentRenderer = (*fakeRenderer)(nil)

func (r *fakeRenderer) Render(_ context.Context, _ *entity.Invoice, _ []*entity.InvoiceItem, _ dto.IssuerInfo) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders++
	if r.failures > 0 {
		r.failures--
		return nil, fmt.Errorf("engine wedged")
	}
	return r.out, nil
}

func (r *fakeRenderer) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposes++
}

type fakeStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

var _ DocumentStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore { return &fakeStore{files: make(map[string][]byte)} }

func (s *fakeStore) Put(_ context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
	return "/docs/" + name, nil
}
