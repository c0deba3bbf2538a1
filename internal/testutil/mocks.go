package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/dbakare/gromart/internal/domain/agent"
	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/dbakare/gromart/internal/domain/trail"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/dbakare/gromart/internal/jobs"
	"github.com/dbakare/gromart/internal/notify"
	"github.com/google/uuid"
)

// --- Order Repository Mock ---

// MockOrderRepository is an in-memory implementation of order.Repository.
// It mirrors the database semantics the application relies on: not-found
// sentinels and compare-and-set agent assignment.
type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order

	CreateFunc              func(ctx context.Context, o *order.Order) error
	GetByIDFunc             func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	GetByOrderNumberFunc    func(ctx context.Context, number string) (*order.Order, error)
	GetCurrentForListFunc   func(ctx context.Context, shoppingListID, customerID uuid.UUID) (*order.Order, error)
	ExistsByOrderNumberFunc func(ctx context.Context, number string) (bool, error)
	UpdateFunc              func(ctx context.Context, o *order.Order) error
	AssignAgentFunc         func(ctx context.Context, orderID, agentID uuid.UUID) error
	ListFunc                func(ctx context.Context, f order.ListFilter) ([]*order.Order, error)
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[uuid.UUID]*order.Order)}
}

// AddOrder pre-populates the mock with an order.
func (m *MockOrderRepository) AddOrder(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockOrderRepository) GetByOrderNumber(ctx context.Context, number string) (*order.Order, error) {
	if m.GetByOrderNumberFunc != nil {
		return m.GetByOrderNumberFunc(ctx, number)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return o, nil
		}
	}
	return nil, errors.ErrOrderNotFound
}

func (m *MockOrderRepository) GetCurrentForList(ctx context.Context, shoppingListID, customerID uuid.UUID) (*order.Order, error) {
	if m.GetCurrentForListFunc != nil {
		return m.GetCurrentForListFunc(ctx, shoppingListID, customerID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ShoppingListID == shoppingListID && o.CustomerID == customerID &&
			(o.PaymentStatus == order.PaymentPending || o.PaymentStatus == order.PaymentCompleted) {
			return o, nil
		}
	}
	return nil, errors.ErrOrderNotFound
}

func (m *MockOrderRepository) ExistsByOrderNumber(ctx context.Context, number string) (bool, error) {
	if m.ExistsByOrderNumberFunc != nil {
		return m.ExistsByOrderNumberFunc(ctx, number)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockOrderRepository) Update(ctx context.Context, o *order.Order) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return errors.ErrOrderNotFound
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MockOrderRepository) AssignAgent(ctx context.Context, orderID, agentID uuid.UUID) error {
	if m.AssignAgentFunc != nil {
		return m.AssignAgentFunc(ctx, orderID, agentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return errors.ErrOrderNotFound
	}
	if o.AgentID != nil {
		return errors.ErrAssignmentConflict
	}
	o.AgentID = &agentID
	return nil
}

func (m *MockOrderRepository) List(ctx context.Context, f order.ListFilter) ([]*order.Order, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, f)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if f.CustomerID != nil && o.CustomerID != *f.CustomerID {
			continue
		}
		if f.AgentID != nil && (o.AgentID == nil || *o.AgentID != *f.AgentID) {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.PaymentStatus != nil && o.PaymentStatus != *f.PaymentStatus {
			continue
		}
		result = append(result, o)
	}
	return result, nil
}

// --- Shopping List Repository Mock ---

// MockShoppingListRepository is an in-memory implementation of
// shoppinglist.Repository.
type MockShoppingListRepository struct {
	mu    sync.Mutex
	lists map[uuid.UUID]*shoppinglist.ShoppingList

	CreateFunc         func(ctx context.Context, l *shoppinglist.ShoppingList) error
	GetByIDFunc        func(ctx context.Context, id uuid.UUID) (*shoppinglist.ShoppingList, error)
	UpdateFunc         func(ctx context.Context, l *shoppinglist.ShoppingList) error
	ListByCustomerFunc func(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*shoppinglist.ShoppingList, error)
}

func NewMockShoppingListRepository() *MockShoppingListRepository {
	return &MockShoppingListRepository{lists: make(map[uuid.UUID]*shoppinglist.ShoppingList)}
}

// AddList pre-populates the mock with a shopping list.
func (m *MockShoppingListRepository) AddList(l *shoppinglist.ShoppingList) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[l.ID] = l
}

func (m *MockShoppingListRepository) Create(ctx context.Context, l *shoppinglist.ShoppingList) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, l)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[l.ID] = l
	return nil
}

func (m *MockShoppingListRepository) GetByID(ctx context.Context, id uuid.UUID) (*shoppinglist.ShoppingList, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	if !ok {
		return nil, errors.ErrShoppingListNotFound
	}
	return l, nil
}

func (m *MockShoppingListRepository) Update(ctx context.Context, l *shoppinglist.ShoppingList) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, l)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lists[l.ID]; !ok {
		return errors.ErrShoppingListNotFound
	}
	m.lists[l.ID] = l
	return nil
}

func (m *MockShoppingListRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*shoppinglist.ShoppingList, error) {
	if m.ListByCustomerFunc != nil {
		return m.ListByCustomerFunc(ctx, customerID, limit, offset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*shoppinglist.ShoppingList, 0, len(m.lists))
	for _, l := range m.lists {
		if l.CustomerID == customerID {
			result = append(result, l)
		}
	}
	return result, nil
}

// --- Transaction Repository Mock ---

// MockTransactionRepository is an in-memory implementation of
// transaction.Repository.
type MockTransactionRepository struct {
	mu   sync.Mutex
	txns map[uuid.UUID]*transaction.Transaction

	CreateFunc                 func(ctx context.Context, t *transaction.Transaction) error
	GetByIDFunc                func(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	GetByProviderReferenceFunc func(ctx context.Context, reference string) (*transaction.Transaction, error)
	GetByProviderTxIDFunc      func(ctx context.Context, providerTxID string) (*transaction.Transaction, error)
	GetPendingForReferenceFunc func(ctx context.Context, userID uuid.UUID, ref transaction.Reference) (*transaction.Transaction, error)
	UpdateFunc                 func(ctx context.Context, t *transaction.Transaction) error
	ListByReferenceFunc        func(ctx context.Context, ref transaction.Reference) ([]*transaction.Transaction, error)
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{txns: make(map[uuid.UUID]*transaction.Transaction)}
}

// AddTransaction pre-populates the mock with a transaction.
func (m *MockTransactionRepository) AddTransaction(t *transaction.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[t.ID] = t
}

func (m *MockTransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.txns {
		if existing.UserID == t.UserID && existing.Reference == t.Reference &&
			existing.Status == transaction.StatusPending {
			return errors.ErrDuplicateTransaction
		}
	}
	m.txns[t.ID] = t
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	return t, nil
}

func (m *MockTransactionRepository) GetByProviderReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	if m.GetByProviderReferenceFunc != nil {
		return m.GetByProviderReferenceFunc(ctx, reference)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txns {
		if t.ProviderReference != nil && *t.ProviderReference == reference {
			return t, nil
		}
	}
	return nil, errors.ErrTransactionNotFound
}

func (m *MockTransactionRepository) GetByProviderTxID(ctx context.Context, providerTxID string) (*transaction.Transaction, error) {
	if m.GetByProviderTxIDFunc != nil {
		return m.GetByProviderTxIDFunc(ctx, providerTxID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txns {
		if t.ProviderTxID != nil && *t.ProviderTxID == providerTxID {
			return t, nil
		}
	}
	return nil, errors.ErrTransactionNotFound
}

func (m *MockTransactionRepository) GetPendingForReference(ctx context.Context, userID uuid.UUID, ref transaction.Reference) (*transaction.Transaction, error) {
	if m.GetPendingForReferenceFunc != nil {
		return m.GetPendingForReferenceFunc(ctx, userID, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txns {
		if t.UserID == userID && t.Reference == ref && t.Status == transaction.StatusPending {
			return t, nil
		}
	}
	return nil, errors.ErrTransactionNotFound
}

func (m *MockTransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txns[t.ID]; !ok {
		return errors.ErrTransactionNotFound
	}
	m.txns[t.ID] = t
	return nil
}

func (m *MockTransactionRepository) ListByReference(ctx context.Context, ref transaction.Reference) ([]*transaction.Transaction, error) {
	if m.ListByReferenceFunc != nil {
		return m.ListByReferenceFunc(ctx, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*transaction.Transaction, 0)
	for _, t := range m.txns {
		if t.Reference == ref {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- Agent Repository Mock ---

// MockAgentRepository is an in-memory implementation of agent.Repository
// with the same compare-and-set semantics as the database.
type MockAgentRepository struct {
	mu     sync.Mutex
	agents map[uuid.UUID]*agent.Agent

	GetByIDFunc            func(ctx context.Context, id uuid.UUID) (*agent.Agent, error)
	AvailableForMarketFunc func(ctx context.Context, marketID uuid.UUID, excluded []uuid.UUID, limit int) ([]*agent.Agent, error)
	MarkBusyFunc           func(ctx context.Context, id uuid.UUID) error
	MarkAvailableFunc      func(ctx context.Context, id uuid.UUID) error
}

func NewMockAgentRepository() *MockAgentRepository {
	return &MockAgentRepository{agents: make(map[uuid.UUID]*agent.Agent)}
}

// AddAgent pre-populates the mock with an agent.
func (m *MockAgentRepository) AddAgent(a *agent.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = a
}

func (m *MockAgentRepository) GetByID(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, errors.ErrAgentNotFound
	}
	return a, nil
}

func (m *MockAgentRepository) AvailableForMarket(ctx context.Context, marketID uuid.UUID, excluded []uuid.UUID, limit int) ([]*agent.Agent, error) {
	if m.AvailableForMarketFunc != nil {
		return m.AvailableForMarketFunc(ctx, marketID, excluded, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	skip := make(map[uuid.UUID]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}
	result := make([]*agent.Agent, 0)
	for _, a := range m.agents {
		if a.Status != agent.StatusAvailable || skip[a.ID] {
			continue
		}
		if a.MarketID == nil || *a.MarketID != marketID {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CurrentLoad != result[j].CurrentLoad {
			return result[i].CurrentLoad < result[j].CurrentLoad
		}
		// nil LastAssignedAt sorts first, matching NULLS FIRST.
		li, lj := result[i].LastAssignedAt, result[j].LastAssignedAt
		if li == nil {
			return lj != nil
		}
		if lj == nil {
			return false
		}
		return li.Before(*lj)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockAgentRepository) MarkBusy(ctx context.Context, id uuid.UUID) error {
	if m.MarkBusyFunc != nil {
		return m.MarkBusyFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok || a.Status != agent.StatusAvailable {
		return errors.ErrAgentUnavailable
	}
	a.Status = agent.StatusBusy
	a.CurrentLoad++
	return nil
}

func (m *MockAgentRepository) MarkAvailable(ctx context.Context, id uuid.UUID) error {
	if m.MarkAvailableFunc != nil {
		return m.MarkAvailableFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return errors.ErrAgentNotFound
	}
	a.Status = agent.StatusAvailable
	if a.CurrentLoad > 0 {
		a.CurrentLoad--
	}
	return nil
}

// --- Trail Repository Mock ---

// MockTrailRepository records appended audit events in memory.
type MockTrailRepository struct {
	mu     sync.Mutex
	events []*trail.Event

	AppendFunc          func(ctx context.Context, e *trail.Event) error
	ListByReferenceFunc func(ctx context.Context, ref transaction.Reference) ([]*trail.Event, error)
}

func NewMockTrailRepository() *MockTrailRepository {
	return &MockTrailRepository{}
}

func (m *MockTrailRepository) Append(ctx context.Context, e *trail.Event) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MockTrailRepository) ListByReference(ctx context.Context, ref transaction.Reference) ([]*trail.Event, error) {
	if m.ListByReferenceFunc != nil {
		return m.ListByReferenceFunc(ctx, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*trail.Event, 0)
	for _, e := range m.events {
		if e.Reference == ref {
			result = append(result, e)
		}
	}
	return result, nil
}

// Events returns a copy of every recorded event (test helper).
func (m *MockTrailRepository) Events() []*trail.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*trail.Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsWithAction returns recorded events matching the action.
func (m *MockTrailRepository) EventsWithAction(action string) []*trail.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*trail.Event
	for _, e := range m.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs the unit of work directly.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Scheduler Mock ---

// MockScheduler records enqueued jobs and enforces per-key dedupe the way
// the real queue does.
type MockScheduler struct {
	mu   sync.Mutex
	jobs []jobs.Job
	keys map[string]bool

	EnqueueFunc func(ctx context.Context, job jobs.Job) error
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{keys: make(map[string]bool)}
}

func (m *MockScheduler) Enqueue(ctx context.Context, job jobs.Job) error {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.Key != "" && m.keys[job.Key] {
		return errors.ErrJobDuplicate
	}
	if job.Key != "" {
		m.keys[job.Key] = true
	}
	m.jobs = append(m.jobs, job)
	return nil
}

// Jobs returns a copy of every recorded job.
func (m *MockScheduler) Jobs() []jobs.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]jobs.Job, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// JobsOfType returns the recorded jobs with the given type.
func (m *MockScheduler) JobsOfType(t jobs.Type) []jobs.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []jobs.Job
	for _, j := range m.jobs {
		if j.Type == t {
			out = append(out, j)
		}
	}
	return out
}

// ReleaseKey frees a dedupe key, simulating the queue handing the job to a
// consumer.
func (m *MockScheduler) ReleaseKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
}

// --- Notifier Mock ---

// MockNotifier records emitted notification events.
type MockNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(_ context.Context, e notify.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Events returns a copy of every recorded event.
func (m *MockNotifier) Events() []notify.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOfType returns recorded events matching the type.
func (m *MockNotifier) EventsOfType(t string) []notify.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
