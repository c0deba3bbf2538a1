package checkout_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/dbakare/gromart/internal/application/checkout"
	"github.com/dbakare/gromart/internal/application/expiry"
	"github.com/dbakare/gromart/internal/application/lifecycle"
	domainErrors "github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/dbakare/gromart/internal/domain/trail"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/dbakare/gromart/internal/jobs"
	"github.com/dbakare/gromart/internal/providers"
	"github.com/dbakare/gromart/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	serviceFeeRate = 0.05
	paymentWindow  = 15 * time.Minute
)

type checkoutFixture struct {
	orderRepo *testutil.MockOrderRepository
	listRepo  *testutil.MockShoppingListRepository
	txnRepo   *testutil.MockTransactionRepository
	trailRepo *testutil.MockTrailRepository
	scheduler *testutil.MockScheduler
	uc        *checkout.UseCase
}

func newCheckoutFixture(prov providers.Provider) *checkoutFixture {
	f := &checkoutFixture{
		orderRepo: testutil.NewMockOrderRepository(),
		listRepo:  testutil.NewMockShoppingListRepository(),
		txnRepo:   testutil.NewMockTransactionRepository(),
		trailRepo: testutil.NewMockTrailRepository(),
		scheduler: testutil.NewMockScheduler(),
	}
	factory := providers.NewFactory(prov)
	txManager := testutil.NewMockTransactionManager()
	lc := lifecycle.NewEngine(f.orderRepo, f.listRepo, f.txnRepo, f.trailRepo, txManager, zerolog.Nop())
	checker := expiry.NewChecker(
		f.orderRepo, f.txnRepo, lc, factory, f.scheduler,
		testutil.NewMockNotifier(), paymentWindow, zerolog.Nop(),
	)
	f.uc = checkout.NewUseCase(
		f.orderRepo, f.listRepo, f.txnRepo, f.trailRepo, txManager,
		lc, checker, factory, serviceFeeRate, zerolog.Nop(),
	)
	return f
}

func healthyProvider() *providers.MockProvider {
	return providers.NewMockProvider("alatpay",
		providers.WithLatency(0),
		providers.WithFailureRate(0),
	)
}

func checkoutRequest(list *shoppinglist.ShoppingList) checkout.Request {
	return checkout.Request{
		ShoppingListID: list.ID,
		CustomerID:     list.CustomerID,
		CustomerEmail:  "customer@example.com",
		Provider:       "alatpay",
		Currency:       "NGN",
		DeliveryFee:    5500,
		DeliveryAddress: order.DeliveryAddress{
			Latitude: 6.5, Longitude: 3.4,
			Address: "12 Allen Avenue", City: "Ikeja", State: "Lagos", Country: "NG",
		},
	}
}

func TestExecute_CreatesOrderAndPaymentReference(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(healthyProvider())
	list := testutil.NewTestList(uuid.New(), uuid.New())
	f.listRepo.AddList(list)

	res, err := f.uc.Execute(ctx, checkoutRequest(list))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Existing {
		t.Fatal("expected a fresh order")
	}

	wantFee := int64(float64(list.EstimatedTotal) * serviceFeeRate)
	wantTotal := list.EstimatedTotal + wantFee + 5500
	if res.Order.TotalAmount != wantTotal {
		t.Errorf("expected total %d, got %d", wantTotal, res.Order.TotalAmount)
	}
	if res.Order.ServiceFee != wantFee {
		t.Errorf("expected service fee %d, got %d", wantFee, res.Order.ServiceFee)
	}
	if res.Order.PaymentStatus != order.PaymentPending {
		t.Errorf("expected payment pending, got %s", res.Order.PaymentStatus)
	}
	if res.Order.PaymentID == nil || *res.Order.PaymentID != res.Transaction.ID {
		t.Error("expected the order linked to its payment record")
	}

	if res.Transaction.Status != transaction.StatusPending {
		t.Errorf("expected pending transaction, got %s", res.Transaction.Status)
	}
	if res.Transaction.ProviderReference == nil {
		t.Fatal("expected a provider reference on the transaction")
	}
	if res.PaymentRef == nil || res.PaymentRef.Reference != *res.Transaction.ProviderReference {
		t.Error("expected the response to carry the provider reference")
	}

	frozen, _ := f.listRepo.GetByID(ctx, list.ID)
	if frozen.Status != shoppinglist.StatusPending {
		t.Errorf("expected the list frozen to pending, got %s", frozen.Status)
	}

	expiryJobs := f.scheduler.JobsOfType(jobs.TypeExpiry)
	if len(expiryJobs) != 1 {
		t.Fatalf("expected one scheduled expiry check, got %d", len(expiryJobs))
	}
	if expiryJobs[0].Delay != paymentWindow {
		t.Errorf("expected the expiry delayed by the full window, got %s", expiryJobs[0].Delay)
	}

	if events := f.trailRepo.EventsWithAction(trail.ActionOrderCreated); len(events) != 1 {
		t.Errorf("expected one order_created trail event, got %d", len(events))
	}
}

func TestExecute_DuplicateCheckoutReturnsExistingOrder(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(healthyProvider())
	list := testutil.NewTestList(uuid.New(), uuid.New())
	f.listRepo.AddList(list)

	first, err := f.uc.Execute(ctx, checkoutRequest(list))
	if err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}

	second, err := f.uc.Execute(ctx, checkoutRequest(list))
	if err != nil {
		t.Fatalf("duplicate checkout failed: %v", err)
	}
	if !second.Existing {
		t.Fatal("expected the duplicate resolved to the existing order")
	}
	if second.Order.ID != first.Order.ID {
		t.Error("duplicate checkout must not create a second order")
	}
	if second.Transaction == nil || second.Transaction.ID != first.Transaction.ID {
		t.Error("expected the pending payment record returned with the existing order")
	}
}

func TestExecute_DuplicateAfterPaymentStillSuppressed(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(healthyProvider())
	list := testutil.NewTestList(uuid.New(), uuid.New())
	f.listRepo.AddList(list)

	first, err := f.uc.Execute(ctx, checkoutRequest(list))
	if err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}
	stored, _ := f.orderRepo.GetByID(ctx, first.Order.ID)
	if err := stored.MarkPaymentCompleted(first.Transaction.ID); err != nil {
		t.Fatalf("seed completion: %v", err)
	}

	second, err := f.uc.Execute(ctx, checkoutRequest(list))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Existing || second.Order.ID != first.Order.ID {
		t.Error("a paid order is still live; checkout must resolve to it")
	}
}

func TestExecute_EmptyListRejected(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(healthyProvider())
	list := testutil.NewTestList(uuid.New(), uuid.New())
	list.Items = nil
	f.listRepo.AddList(list)

	_, err := f.uc.Execute(ctx, checkoutRequest(list))
	if err == nil {
		t.Fatal("expected a validation error for an empty list")
	}
}

func TestExecute_ForeignListForbidden(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(healthyProvider())
	list := testutil.NewTestList(uuid.New(), uuid.New())
	f.listRepo.AddList(list)

	req := checkoutRequest(list)
	req.CustomerID = uuid.New()
	_, err := f.uc.Execute(ctx, req)
	if !stderrors.Is(err, domainErrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestExecute_UnknownProviderRejected(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(healthyProvider())
	list := testutil.NewTestList(uuid.New(), uuid.New())
	f.listRepo.AddList(list)

	req := checkoutRequest(list)
	req.Provider = "moonpay"
	_, err := f.uc.Execute(ctx, req)
	if !stderrors.Is(err, domainErrors.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestExecute_CancelledListCannotCheckout(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(healthyProvider())
	list := testutil.NewTestList(uuid.New(), uuid.New())
	list.Status = shoppinglist.StatusCancelled
	f.listRepo.AddList(list)

	_, err := f.uc.Execute(ctx, checkoutRequest(list))
	if !stderrors.Is(err, domainErrors.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestExecute_ReferenceFailureCompensates(t *testing.T) {
	// A short deadline aborts the retry loop after the first rejection.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	failing := providers.NewMockProvider("alatpay",
		providers.WithLatency(0),
		providers.WithFailureRate(1.0),
	)
	f := newCheckoutFixture(failing)
	list := testutil.NewTestList(uuid.New(), uuid.New())
	f.listRepo.AddList(list)

	_, err := f.uc.Execute(ctx, checkoutRequest(list))
	if err == nil {
		t.Fatal("expected the checkout to fail when no reference can be generated")
	}

	// Compensation must leave no live order behind, so the customer can
	// check out again.
	_, err = f.orderRepo.GetCurrentForList(context.Background(), list.ID, list.CustomerID)
	if !stderrors.Is(err, domainErrors.ErrOrderNotFound) {
		t.Fatalf("expected no live order after compensation, got %v", err)
	}

	orders, _ := f.orderRepo.List(context.Background(), order.ListFilter{})
	if len(orders) != 1 {
		t.Fatalf("expected the compensated order kept for audit, got %d", len(orders))
	}
	if orders[0].PaymentStatus != order.PaymentFailed {
		t.Errorf("expected the order's payment marked failed, got %s", orders[0].PaymentStatus)
	}
	if orders[0].Status != order.StatusCancelled {
		t.Errorf("expected the order cancelled, got %s", orders[0].Status)
	}

	txns, _ := f.txnRepo.ListByReference(context.Background(), transaction.OrderRef(orders[0].ID))
	if len(txns) != 1 || txns[0].Status != transaction.StatusFailed {
		t.Error("expected the payment record marked failed")
	}
}
