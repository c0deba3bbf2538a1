package expiry_test

import (
	"context"
	"testing"
	"time"

	"github.com/dbakare/gromart/internal/application/expiry"
	"github.com/dbakare/gromart/internal/application/lifecycle"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/dbakare/gromart/internal/jobs"
	"github.com/dbakare/gromart/internal/providers"
	"github.com/dbakare/gromart/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const testTimeout = 15 * time.Minute

type expiryFixture struct {
	orderRepo *testutil.MockOrderRepository
	listRepo  *testutil.MockShoppingListRepository
	txnRepo   *testutil.MockTransactionRepository
	trailRepo *testutil.MockTrailRepository
	scheduler *testutil.MockScheduler
	notifier  *testutil.MockNotifier
	provider  *providers.MockProvider
	checker   *expiry.Checker
}

func newExpiryFixture() *expiryFixture {
	f := &expiryFixture{
		orderRepo: testutil.NewMockOrderRepository(),
		listRepo:  testutil.NewMockShoppingListRepository(),
		txnRepo:   testutil.NewMockTransactionRepository(),
		trailRepo: testutil.NewMockTrailRepository(),
		scheduler: testutil.NewMockScheduler(),
		notifier:  testutil.NewMockNotifier(),
		provider: providers.NewMockProvider("alatpay",
			providers.WithLatency(0),
			providers.WithFailureRate(0),
		),
	}
	factory := providers.NewFactory(f.provider)
	lc := lifecycle.NewEngine(
		f.orderRepo, f.listRepo, f.txnRepo, f.trailRepo,
		testutil.NewMockTransactionManager(), zerolog.Nop(),
	)
	f.checker = expiry.NewChecker(
		f.orderRepo, f.txnRepo, lc, factory, f.scheduler, f.notifier,
		testTimeout, zerolog.Nop(),
	)
	return f
}

// seedStaleCheckout creates a pending checkout whose payment window has
// already elapsed. The provider knows the reference but has not seen money.
func seedStaleCheckout(t *testing.T, f *expiryFixture) (*order.Order, *transaction.Transaction) {
	t.Helper()
	ctx := context.Background()

	list := testutil.NewTestList(uuid.New(), uuid.New())
	list.Status = shoppinglist.StatusPending
	f.listRepo.AddList(list)

	o := testutil.NewTestOrder(list.CustomerID, list.ID)
	o.CreatedAt = time.Now().Add(-20 * time.Minute)
	txn := testutil.NewTestTransaction(list.CustomerID, o.ID, o.TotalAmount)

	ref, err := f.provider.GenerateReference(ctx, providers.ReferenceRequest{
		OrderID: o.ID.String(), AmountCents: o.TotalAmount, Currency: "NGN",
	})
	if err != nil {
		t.Fatalf("generate reference: %v", err)
	}
	txn.ProviderReference = &ref.Reference

	o.PaymentID = &txn.ID
	f.orderRepo.AddOrder(o)
	f.txnRepo.AddTransaction(txn)
	return o, txn
}

func TestCheck_ExpiresStalePendingPayment(t *testing.T) {
	ctx := context.Background()
	f := newExpiryFixture()
	o, txn := seedStaleCheckout(t, f)

	outcome, err := f.checker.Check(ctx, o.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != expiry.OutcomeExpired {
		t.Fatalf("expected expired outcome, got %s", outcome)
	}

	updated, _ := f.orderRepo.GetByID(ctx, o.ID)
	if updated.PaymentStatus != order.PaymentExpired {
		t.Errorf("expected payment expired, got %s", updated.PaymentStatus)
	}
	updatedTxn, _ := f.txnRepo.GetByID(ctx, txn.ID)
	if updatedTxn.Status != transaction.StatusFailed {
		t.Errorf("expected transaction failed, got %s", updatedTxn.Status)
	}
	if events := f.notifier.EventsOfType("payment_expired"); len(events) != 1 {
		t.Errorf("expected one payment_expired notification, got %d", len(events))
	}
}

func TestCheck_FiredEarlyReschedules(t *testing.T) {
	ctx := context.Background()
	f := newExpiryFixture()
	o, _ := seedStaleCheckout(t, f)

	stored, _ := f.orderRepo.GetByID(ctx, o.ID)
	stored.CreatedAt = time.Now().Add(-5 * time.Minute)

	outcome, err := f.checker.Check(ctx, o.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != expiry.OutcomeRescheduled {
		t.Fatalf("expected rescheduled outcome, got %s", outcome)
	}

	updated, _ := f.orderRepo.GetByID(ctx, o.ID)
	if updated.PaymentStatus != order.PaymentPending {
		t.Errorf("an early check must not touch the payment, got %s", updated.PaymentStatus)
	}

	expiryJobs := f.scheduler.JobsOfType(jobs.TypeExpiry)
	if len(expiryJobs) != 1 {
		t.Fatalf("expected one rescheduled expiry job, got %d", len(expiryJobs))
	}
	if expiryJobs[0].Delay <= 0 || expiryJobs[0].Delay > testTimeout {
		t.Errorf("reschedule delay should cover the remaining window, got %s", expiryJobs[0].Delay)
	}
}

func TestCheck_AlreadyResolvedIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newExpiryFixture()
	o, _ := seedStaleCheckout(t, f)

	stored, _ := f.orderRepo.GetByID(ctx, o.ID)
	if err := stored.MarkPaymentCompleted(uuid.New()); err != nil {
		t.Fatalf("seed completion: %v", err)
	}

	outcome, err := f.checker.Check(ctx, o.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != expiry.OutcomeAlreadyResolved {
		t.Errorf("expected already_resolved outcome, got %s", outcome)
	}
	if len(f.scheduler.Jobs()) != 0 {
		t.Error("a resolved payment must not schedule anything")
	}
}

func TestCheck_LateCompletionDetected(t *testing.T) {
	ctx := context.Background()
	f := newExpiryFixture()
	o, txn := seedStaleCheckout(t, f)

	// Money arrived but the webhook never did.
	f.provider.SettlePayment(*txn.ProviderReference)

	outcome, err := f.checker.Check(ctx, o.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != expiry.OutcomeLateCompleted {
		t.Fatalf("expected late_completed outcome, got %s", outcome)
	}

	updated, _ := f.orderRepo.GetByID(ctx, o.ID)
	if updated.PaymentStatus != order.PaymentCompleted {
		t.Errorf("expected payment completed, got %s", updated.PaymentStatus)
	}
	if jobsOf := f.scheduler.JobsOfType(jobs.TypeAssignment); len(jobsOf) != 1 {
		t.Errorf("late completion must trigger agent assignment, got %d jobs", len(jobsOf))
	}
	if events := f.notifier.EventsOfType("payment_confirmed"); len(events) != 1 {
		t.Errorf("expected one payment_confirmed notification, got %d", len(events))
	}
}

func TestCheck_ProviderOutageFallsBackToLocalTimeout(t *testing.T) {
	ctx := context.Background()
	f := newExpiryFixture()
	o, _ := seedStaleCheckout(t, f)

	// Every status call times out; the local window must decide.
	outage := providers.NewMockProvider("alatpay",
		providers.WithLatency(0),
		providers.WithTimeoutRate(1.0),
	)
	factory := providers.NewFactory(outage)
	lc := lifecycle.NewEngine(
		f.orderRepo, f.listRepo, f.txnRepo, f.trailRepo,
		testutil.NewMockTransactionManager(), zerolog.Nop(),
	)
	checker := expiry.NewChecker(
		f.orderRepo, f.txnRepo, lc, factory, f.scheduler, f.notifier,
		testTimeout, zerolog.Nop(),
	)

	outcome, err := checker.Check(ctx, o.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != expiry.OutcomeExpired {
		t.Fatalf("expected expired outcome on provider outage, got %s", outcome)
	}

	updated, _ := f.orderRepo.GetByID(ctx, o.ID)
	if updated.PaymentStatus != order.PaymentExpired {
		t.Errorf("expected payment expired, got %s", updated.PaymentStatus)
	}
}

func TestCheck_UnknownOrderDropped(t *testing.T) {
	ctx := context.Background()
	f := newExpiryFixture()

	outcome, err := f.checker.Check(ctx, uuid.New())
	if err != nil {
		t.Fatalf("an unknown order must not error the queue, got %v", err)
	}
	if outcome != expiry.OutcomeAlreadyResolved {
		t.Errorf("expected already_resolved outcome, got %s", outcome)
	}
}

func TestSchedule_DelaysByFullWindow(t *testing.T) {
	ctx := context.Background()
	f := newExpiryFixture()
	orderID := uuid.New()

	if err := f.checker.Schedule(ctx, orderID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expiryJobs := f.scheduler.JobsOfType(jobs.TypeExpiry)
	if len(expiryJobs) != 1 {
		t.Fatalf("expected one expiry job, got %d", len(expiryJobs))
	}
	if expiryJobs[0].Delay != testTimeout {
		t.Errorf("expected delay %s, got %s", testTimeout, expiryJobs[0].Delay)
	}
	if expiryJobs[0].Key != jobs.DedupeKey(jobs.TypeExpiry, orderID) {
		t.Errorf("expected the order's dedupe key, got %q", expiryJobs[0].Key)
	}

	// A duplicate schedule under the same key is silently absorbed.
	if err := f.checker.Schedule(ctx, orderID); err != nil {
		t.Fatalf("duplicate schedule must be a no-op, got %v", err)
	}
	if got := len(f.scheduler.JobsOfType(jobs.TypeExpiry)); got != 1 {
		t.Errorf("expected still one expiry job, got %d", got)
	}
}
