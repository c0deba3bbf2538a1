package assignment_test

import (
	"context"
	"testing"
	"time"

	"github.com/dbakare/gromart/internal/application/assignment"
	"github.com/dbakare/gromart/internal/domain/agent"
	domainErrors "github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/dbakare/gromart/internal/domain/trail"
	"github.com/dbakare/gromart/internal/jobs"
	"github.com/dbakare/gromart/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var testPolicy = jobs.RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 30 * time.Second,
	MaxBackoff:     5 * time.Minute,
	Multiplier:     2.0,
}

type assignmentFixture struct {
	orderRepo *testutil.MockOrderRepository
	listRepo  *testutil.MockShoppingListRepository
	agentRepo *testutil.MockAgentRepository
	trailRepo *testutil.MockTrailRepository
	scheduler *testutil.MockScheduler
	notifier  *testutil.MockNotifier
	engine    *assignment.Engine
}

func newAssignmentFixture() *assignmentFixture {
	f := &assignmentFixture{
		orderRepo: testutil.NewMockOrderRepository(),
		listRepo:  testutil.NewMockShoppingListRepository(),
		agentRepo: testutil.NewMockAgentRepository(),
		trailRepo: testutil.NewMockTrailRepository(),
		scheduler: testutil.NewMockScheduler(),
		notifier:  testutil.NewMockNotifier(),
	}
	f.engine = assignment.NewEngine(
		f.orderRepo, f.listRepo, f.agentRepo, f.trailRepo,
		testutil.NewMockTransactionManager(), f.scheduler, f.notifier,
		testPolicy, zerolog.Nop(),
	)
	return f
}

// seedPaidOrder creates an accepted-payment order with its shopping list.
func seedPaidOrder(f *assignmentFixture) *order.Order {
	list := testutil.NewTestList(uuid.New(), uuid.New())
	list.Status = shoppinglist.StatusAccepted
	f.listRepo.AddList(list)

	o := testutil.NewPaidOrder(list.CustomerID, list.ID)
	f.orderRepo.AddOrder(o)
	return o
}

func marketOf(f *assignmentFixture, o *order.Order) uuid.UUID {
	list, _ := f.listRepo.GetByID(context.Background(), o.ShoppingListID)
	return list.MarketID
}

func TestAssignOrder_Success(t *testing.T) {
	ctx := context.Background()
	f := newAssignmentFixture()
	o := seedPaidOrder(f)
	a := testutil.NewTestAgent(marketOf(f, o), 0)
	f.agentRepo.AddAgent(a)

	res, err := f.engine.AssignOrder(ctx, o.ID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Assigned || res.AgentID == nil || *res.AgentID != a.ID {
		t.Fatalf("expected assignment to agent %s, got %+v", a.ID, res)
	}

	updated, _ := f.orderRepo.GetByID(ctx, o.ID)
	if updated.AgentID == nil || *updated.AgentID != a.ID {
		t.Error("expected the agent bound to the order")
	}
	if updated.Status != order.StatusAccepted {
		t.Errorf("expected order accepted after assignment, got %s", updated.Status)
	}

	storedAgent, _ := f.agentRepo.GetByID(ctx, a.ID)
	if storedAgent.Status != agent.StatusBusy {
		t.Errorf("expected agent busy, got %s", storedAgent.Status)
	}
	if storedAgent.CurrentLoad != 1 {
		t.Errorf("expected agent load 1, got %d", storedAgent.CurrentLoad)
	}

	list, _ := f.listRepo.GetByID(ctx, o.ShoppingListID)
	if list.AgentID == nil || *list.AgentID != a.ID {
		t.Error("expected the agent mirrored onto the shopping list")
	}

	if events := f.trailRepo.EventsWithAction(trail.ActionAgentAssigned); len(events) != 1 {
		t.Errorf("expected one agent_assigned trail event, got %d", len(events))
	}
	if events := f.notifier.EventsOfType("agent_assigned"); len(events) != 1 {
		t.Errorf("expected one agent_assigned notification, got %d", len(events))
	}
}

func TestAssignOrder_PrefersLowestLoad(t *testing.T) {
	ctx := context.Background()
	f := newAssignmentFixture()
	o := seedPaidOrder(f)
	market := marketOf(f, o)

	busy := testutil.NewTestAgent(market, 3)
	idle := testutil.NewTestAgent(market, 0)
	f.agentRepo.AddAgent(busy)
	f.agentRepo.AddAgent(idle)

	res, err := f.engine.AssignOrder(ctx, o.ID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AgentID == nil || *res.AgentID != idle.ID {
		t.Errorf("expected the least-loaded agent, got %v", res.AgentID)
	}
}

func TestAssignOrder_SkipsConcurrentlyTakenAgent(t *testing.T) {
	ctx := context.Background()
	f := newAssignmentFixture()
	o := seedPaidOrder(f)
	market := marketOf(f, o)

	taken := testutil.NewTestAgent(market, 0)
	fallback := testutil.NewTestAgent(market, 1)
	f.agentRepo.AddAgent(taken)
	f.agentRepo.AddAgent(fallback)

	// The top candidate is grabbed by another worker between ranking and
	// the compare-and-set.
	f.agentRepo.MarkBusyFunc = func(ctx context.Context, id uuid.UUID) error {
		if id == taken.ID {
			return domainErrors.ErrAgentUnavailable
		}
		a, _ := f.agentRepo.GetByID(ctx, id)
		a.Status = agent.StatusBusy
		a.CurrentLoad++
		return nil
	}

	res, err := f.engine.AssignOrder(ctx, o.ID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AgentID == nil || *res.AgentID != fallback.ID {
		t.Errorf("expected the fallback agent after a lost race, got %v", res.AgentID)
	}
}

func TestAssignOrder_ConflictMeansAnotherWorkerWon(t *testing.T) {
	ctx := context.Background()
	f := newAssignmentFixture()
	o := seedPaidOrder(f)
	a := testutil.NewTestAgent(marketOf(f, o), 0)
	f.agentRepo.AddAgent(a)

	f.orderRepo.AssignAgentFunc = func(ctx context.Context, orderID, agentID uuid.UUID) error {
		return domainErrors.ErrAssignmentConflict
	}

	res, err := f.engine.AssignOrder(ctx, o.ID, 1)
	if err != nil {
		t.Fatalf("a lost order race is not an error: %v", err)
	}
	if !res.Assigned {
		t.Error("expected Assigned=true when another worker completed the assignment")
	}
	if res.AgentID != nil {
		t.Error("the winning agent is unknown to the loser")
	}
}

func TestAssignOrder_AlreadyAssignedIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newAssignmentFixture()
	o := seedPaidOrder(f)
	agentID := uuid.New()
	stored, _ := f.orderRepo.GetByID(ctx, o.ID)
	stored.AgentID = &agentID

	res, err := f.engine.AssignOrder(ctx, o.ID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Assigned || res.AgentID == nil || *res.AgentID != agentID {
		t.Errorf("expected the existing assignment reported, got %+v", res)
	}
	if len(f.scheduler.Jobs()) != 0 {
		t.Error("no retry should be scheduled for an assigned order")
	}
}

func TestAssignOrder_UnpaidOrderSkipped(t *testing.T) {
	ctx := context.Background()
	f := newAssignmentFixture()
	list := testutil.NewTestList(uuid.New(), uuid.New())
	f.listRepo.AddList(list)
	o := testutil.NewTestOrder(list.CustomerID, list.ID) // payment still pending
	f.orderRepo.AddOrder(o)

	res, err := f.engine.AssignOrder(ctx, o.ID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Assigned || res.Rescheduled {
		t.Errorf("an unpaid order must be skipped, got %+v", res)
	}
}

func TestAssignOrder_NoAgentsSchedulesRetry(t *testing.T) {
	ctx := context.Background()
	f := newAssignmentFixture()
	o := seedPaidOrder(f)

	res, err := f.engine.AssignOrder(ctx, o.ID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Rescheduled {
		t.Fatal("expected a retry to be scheduled when no agents are available")
	}

	retries := f.scheduler.JobsOfType(jobs.TypeAssignment)
	if len(retries) != 1 {
		t.Fatalf("expected one retry job, got %d", len(retries))
	}
	job := retries[0]
	if job.Delay != testPolicy.BackoffFor(1) {
		t.Errorf("expected backoff %s, got %s", testPolicy.BackoffFor(1), job.Delay)
	}
	if job.Payload["attempt"] != 2 {
		t.Errorf("expected next attempt 2, got %v", job.Payload["attempt"])
	}
	if job.Key != jobs.DedupeKey(jobs.TypeAssignment, o.ID) {
		t.Errorf("expected the order's dedupe key, got %q", job.Key)
	}
}

func TestAssignOrder_ExhaustedAttemptsStop(t *testing.T) {
	ctx := context.Background()
	f := newAssignmentFixture()
	o := seedPaidOrder(f)

	res, err := f.engine.AssignOrder(ctx, o.ID, testPolicy.MaxAttempts)
	if err != nil {
		t.Fatalf("exhausted attempts must not error the queue: %v", err)
	}
	if res.Assigned || res.Rescheduled {
		t.Errorf("expected no assignment and no retry after the final attempt, got %+v", res)
	}
	if len(f.scheduler.Jobs()) != 0 {
		t.Error("no retry job should be scheduled after exhausting attempts")
	}
}

func TestAssignToAgent_UnpaidOrderRejected(t *testing.T) {
	ctx := context.Background()
	f := newAssignmentFixture()
	list := testutil.NewTestList(uuid.New(), uuid.New())
	f.listRepo.AddList(list)
	o := testutil.NewTestOrder(list.CustomerID, list.ID)
	f.orderRepo.AddOrder(o)
	a := testutil.NewTestAgent(list.MarketID, 0)
	f.agentRepo.AddAgent(a)

	err := f.engine.AssignToAgent(ctx, o.ID, a.ID)
	if err == nil {
		t.Fatal("expected an error assigning an unpaid order")
	}
}

func TestAssignToAgent_SameAgentTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newAssignmentFixture()
	o := seedPaidOrder(f)
	a := testutil.NewTestAgent(marketOf(f, o), 0)
	f.agentRepo.AddAgent(a)

	if err := f.engine.AssignToAgent(ctx, o.ID, a.ID); err != nil {
		t.Fatalf("first assignment failed: %v", err)
	}
	if err := f.engine.AssignToAgent(ctx, o.ID, a.ID); err != nil {
		t.Fatalf("re-assigning the same agent must be a no-op, got %v", err)
	}

	other := testutil.NewTestAgent(marketOf(f, o), 0)
	f.agentRepo.AddAgent(other)
	err := f.engine.AssignToAgent(ctx, o.ID, other.ID)
	if err == nil {
		t.Fatal("expected a conflict assigning a second agent")
	}
}
