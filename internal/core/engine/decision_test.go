package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditgate/creditgate/internal/core"
	"github.com/creditgate/creditgate/internal/core/throttle"
)

type memoryApprovalStore struct {
	mu      sync.Mutex
	records map[string]core.ApprovalRecord
	gets    atomic.Int32
	puts    atomic.Int32
	getErr  error
	putErr  error
}

func (m *memoryApprovalStore) Get(ctx context.Context, identity string) (*core.ApprovalRecord, error) {
	m.gets.Add(1)
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[identity]; ok {
		return &record, nil
	}
	return nil, nil
}

func (m *memoryApprovalStore) Put(ctx context.Context, identity string, record core.ApprovalRecord) (*core.ApprovalRecord, error) {
	m.puts.Add(1)
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string]core.ApprovalRecord)
	}
	if existing, ok := m.records[identity]; ok {
		return &existing, nil
	}
	m.records[identity] = record
	return &record, nil
}

var testRequestedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func amount(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func smeRequest(revenue, requested string) core.RawCreditRequest {
	at := testRequestedAt
	return core.RawCreditRequest{
		BusinessKind:    "SME",
		MonthlyRevenue:  amount(revenue),
		RequestedAmount: amount(requested),
		RequestedAt:     &at,
	}
}

func startupRequest(cash, revenue, requested string) core.RawCreditRequest {
	raw := smeRequest(revenue, requested)
	raw.BusinessKind = "STARTUP"
	raw.CashBalance = amount(cash)
	return raw
}

func newTestEngine() (*Engine, *throttle.Throttle, *memoryApprovalStore) {
	th := throttle.New(throttle.Limits{})
	store := &memoryApprovalStore{}
	eng := New(th, store, DefaultPolicy)
	return eng, th, store
}

func TestEvaluateApprovesSME(t *testing.T) {
	eng, th, _ := newTestEngine()

	record, err := eng.Evaluate(context.Background(), "10.0.0.1", smeRequest("500", "100"))
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, core.ApprovalStatusApproved, record.Status)
	assert.True(t, record.ApprovedAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, testRequestedAt, record.CreatedAt)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, 0, th.CurrentFailureCount("10.0.0.1"))
}

func TestEvaluateApprovesStartupOnCashTerm(t *testing.T) {
	eng, _, _ := newTestEngine()

	record, err := eng.Evaluate(context.Background(), "10.0.0.1", startupRequest("600", "500", "200"))
	require.NoError(t, err)
	assert.True(t, record.ApprovedAmount.Equal(decimal.NewFromInt(200)))
}

func TestEvaluateReplaysExistingApproval(t *testing.T) {
	eng, th, store := newTestEngine()
	ctx := context.Background()

	first, err := eng.Evaluate(ctx, "10.0.0.1", startupRequest("500", "500", "100"))
	require.NoError(t, err)

	// The second payload differs; the stored record wins regardless.
	second, err := eng.Evaluate(ctx, "10.0.0.1", smeRequest("1", "999999"))
	require.NoError(t, err)

	assert.Equal(t, *first, *second)
	assert.Equal(t, 0, th.CurrentFailureCount("10.0.0.1"))
	assert.Equal(t, int32(1), store.puts.Load())
}

func TestEvaluateAttemptsExceededSkipsStore(t *testing.T) {
	eng, th, store := newTestEngine()
	for i := 0; i < DefaultPolicy.MaxAttempts; i++ {
		_ = th.RecordFailure("10.0.0.1")
	}

	_, err := eng.Evaluate(context.Background(), "10.0.0.1", smeRequest("500", "100"))
	require.ErrorIs(t, err, core.ErrAttemptsExceeded)
	assert.Equal(t, int32(0), store.gets.Load())
	assert.Equal(t, DefaultPolicy.MaxAttempts, th.CurrentFailureCount("10.0.0.1"))
}

func TestEvaluateRejectsUnaffordable(t *testing.T) {
	eng, th, store := newTestEngine()

	_, err := eng.Evaluate(context.Background(), "10.0.0.1", smeRequest("500", "101"))
	require.ErrorIs(t, err, core.ErrCreditRejected)

	var rejected *core.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.True(t, rejected.Recommended.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, th.CurrentFailureCount("10.0.0.1"))
	assert.Equal(t, int32(0), store.puts.Load())
}

func TestEvaluateEscalatesOnBudgetExhaustion(t *testing.T) {
	eng, th, _ := newTestEngine()
	ctx := context.Background()

	_, err := eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "101"))
	require.ErrorIs(t, err, core.ErrCreditRejected)
	_, err = eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "101"))
	require.ErrorIs(t, err, core.ErrCreditRejected)

	// The third failure exhausts the budget and is reported as escalation.
	_, err = eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "101"))
	require.ErrorIs(t, err, core.ErrAttemptsExceeded)
	assert.Equal(t, 3, th.CurrentFailureCount("10.0.0.1"))

	// Even an affordable request is now refused.
	_, err = eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "1"))
	require.ErrorIs(t, err, core.ErrAttemptsExceeded)
	assert.Equal(t, 3, th.CurrentFailureCount("10.0.0.1"))
}

func TestEvaluateApprovalResetsFailures(t *testing.T) {
	eng, th, _ := newTestEngine()
	ctx := context.Background()

	_, err := eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "101"))
	require.Error(t, err)
	require.Equal(t, 1, th.CurrentFailureCount("10.0.0.1"))

	_, err = eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "100"))
	require.NoError(t, err)
	assert.Equal(t, 0, th.CurrentFailureCount("10.0.0.1"))
}

func TestEvaluateValidationIsNotCounted(t *testing.T) {
	eng, th, store := newTestEngine()

	raw := smeRequest("500", "100")
	raw.RequestedAmount = nil

	_, err := eng.Evaluate(context.Background(), "10.0.0.1", raw)
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.Equal(t, 0, th.CurrentFailureCount("10.0.0.1"))
	assert.Equal(t, int32(0), store.puts.Load())
}

func TestEvaluateStoreFaultsAreNotCounted(t *testing.T) {
	eng, th, store := newTestEngine()
	store.getErr = errors.New("connection refused")

	_, err := eng.Evaluate(context.Background(), "10.0.0.1", smeRequest("500", "100"))
	require.ErrorIs(t, err, store.getErr)
	assert.Equal(t, 0, th.CurrentFailureCount("10.0.0.1"))

	store.getErr = nil
	store.putErr = errors.New("disk full")
	_, err = eng.Evaluate(context.Background(), "10.0.0.1", smeRequest("500", "100"))
	require.ErrorIs(t, err, store.putErr)
	assert.Equal(t, 0, th.CurrentFailureCount("10.0.0.1"))
}

func TestEvaluateUsesInjectedID(t *testing.T) {
	eng, _, _ := newTestEngine()
	eng.NewID = func() string { return "fixed-id" }

	record, err := eng.Evaluate(context.Background(), "10.0.0.1", smeRequest("500", "100"))
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", record.ID)
}

func TestEvaluateConcurrentFirstWriterWins(t *testing.T) {
	eng, _, _ := newTestEngine()
	var counter atomic.Int32
	eng.NewID = func() string { return fmt.Sprintf("id-%d", counter.Add(1)) }

	const workers = 20
	results := make([]*core.ApprovalRecord, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record, err := eng.Evaluate(context.Background(), "shared", smeRequest("500", "100"))
			if err == nil {
				results[i] = record
			}
		}(i)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	for _, record := range results {
		require.NotNil(t, record)
		assert.Equal(t, results[0].ID, record.ID)
	}
}

func TestEvaluateNotConfigured(t *testing.T) {
	var eng *Engine
	_, err := eng.Evaluate(context.Background(), "ip", smeRequest("500", "100"))
	require.Error(t, err)
}

func TestLookup(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	record, err := eng.Lookup(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Nil(t, record)

	approved, err := eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "100"))
	require.NoError(t, err)

	record, err = eng.Lookup(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, approved.ID, record.ID)
}

func TestSetPolicyAppliesToLaterEvaluations(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "200"))
	require.ErrorIs(t, err, core.ErrCreditRejected)

	eng.SetPolicy(NewPolicy(3, 3, 2.5))
	assert.True(t, eng.CurrentPolicy().MonthlyRevenueRatio.Equal(decimal.NewFromFloat(2.5)))

	record, err := eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "200"))
	require.NoError(t, err)
	assert.True(t, record.ApprovedAmount.Equal(decimal.NewFromInt(200)))
}

// gatedStore parks the first Get until release is closed.
type gatedStore struct {
	*memoryApprovalStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		memoryApprovalStore: &memoryApprovalStore{},
		entered:             make(chan struct{}),
		release:             make(chan struct{}),
	}
}

func (g *gatedStore) Get(ctx context.Context, identity string) (*core.ApprovalRecord, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.memoryApprovalStore.Get(ctx, identity)
}

func TestEvaluateSerialisesSameIdentity(t *testing.T) {
	th := throttle.New(throttle.Limits{MaxAttempts: 2})
	store := newGatedStore()
	eng := New(th, store, NewPolicy(2, 0, 0))
	ctx := context.Background()

	require.NoError(t, th.RecordFailure("10.0.0.1"))
	require.Equal(t, 1, th.CurrentFailureCount("10.0.0.1"))

	type result struct {
		record *core.ApprovalRecord
		err    error
	}
	affordable := make(chan result, 1)
	go func() {
		record, err := eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "1"))
		affordable <- result{record, err}
	}()
	<-store.entered

	unaffordable := make(chan result, 1)
	go func() {
		record, err := eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "101"))
		unaffordable <- result{record, err}
	}()

	select {
	case res := <-unaffordable:
		t.Fatalf("second evaluation finished while the first held the identity: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)

	first := <-affordable
	require.NoError(t, first.err)
	require.NotNil(t, first.record)

	second := <-unaffordable
	require.NoError(t, second.err)
	require.NotNil(t, second.record)
	assert.Equal(t, first.record.ID, second.record.ID)
	assert.Equal(t, 0, th.CurrentFailureCount("10.0.0.1"))
	assert.Equal(t, 0, eng.inFlight.len())
}

func TestEvaluateEscalationIsNeverUndone(t *testing.T) {
	for i := 0; i < 50; i++ {
		th := throttle.New(throttle.Limits{MaxAttempts: 2})
		store := &memoryApprovalStore{}
		eng := New(th, store, NewPolicy(2, 0, 0))
		ctx := context.Background()
		require.NoError(t, th.RecordFailure("10.0.0.1"))

		var wg sync.WaitGroup
		var approveErr, rejectErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "1"))
		}()
		go func() {
			defer wg.Done()
			_, rejectErr = eng.Evaluate(ctx, "10.0.0.1", smeRequest("500", "101"))
		}()
		wg.Wait()

		if errors.Is(rejectErr, core.ErrAttemptsExceeded) {
			require.ErrorIs(t, approveErr, core.ErrAttemptsExceeded)
			assert.Equal(t, 2, th.CurrentFailureCount("10.0.0.1"))
			assert.Equal(t, int32(0), store.puts.Load())
			continue
		}
		require.NoError(t, rejectErr)
		require.NoError(t, approveErr)
		assert.Equal(t, 0, th.CurrentFailureCount("10.0.0.1"))
	}
}

func TestIdentityLocksReleaseEntries(t *testing.T) {
	var locks identityLocks
	unlockA := locks.lock("a")
	unlockB := locks.lock("b")
	assert.Equal(t, 2, locks.len())

	unlockA()
	unlockB()
	assert.Equal(t, 0, locks.len())
}
