package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clauselens/internal/types"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetOrCreate(ctx context.Context, userID string) (*types.EntitlementRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.EntitlementRecord), args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, record *types.EntitlementRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func newTestService(store Store) *Service {
	svc := NewService(store, nil)
	svc.now = func() time.Time {
		return time.Date(2025, time.February, 10, 9, 0, 0, 0, time.UTC)
	}
	return svc
}

func conflictErr() error {
	return types.NewAppError(types.ErrCodeConflictConcurrent, "stale version", nil)
}

func TestServiceConsume(t *testing.T) {
	ctx := context.Background()

	t.Run("allowed path persists the updated record", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetOrCreate", mock.Anything, "user-1").
			Return(types.DefaultEntitlement("user-1"), nil).Once()
		store.On("Update", mock.Anything, mock.MatchedBy(func(r *types.EntitlementRecord) bool {
			return r.LifetimeAnalysisCount == 1
		})).Return(nil).Once()

		decision, err := newTestService(store).Consume(ctx, "user-1", types.ActionAnalyze)

		require.NoError(t, err)
		require.True(t, decision.Allowed)
		assert.Equal(t, 1, decision.Updated.LifetimeAnalysisCount)
		store.AssertExpectations(t)
	})

	t.Run("denial returns without touching storage", func(t *testing.T) {
		store := new(mockStore)
		exhausted := types.DefaultEntitlement("user-1")
		exhausted.LifetimeAnalysisCount = 1
		store.On("GetOrCreate", mock.Anything, "user-1").Return(exhausted, nil).Once()

		decision, err := newTestService(store).Consume(ctx, "user-1", types.ActionAnalyze)

		require.NoError(t, err)
		require.False(t, decision.Allowed)
		assert.Equal(t, types.ErrCodeTrialExhausted, decision.Reason)
		store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("version conflict retries against a fresh read", func(t *testing.T) {
		store := new(mockStore)
		first := &types.EntitlementRecord{
			UserID: "user-1", PlanType: types.PlanPro, ProSubType: types.ProSubMonthly,
			PeriodAnchor: "2025-2", PeriodCount: 10, Version: 3,
		}
		second := &types.EntitlementRecord{
			UserID: "user-1", PlanType: types.PlanPro, ProSubType: types.ProSubMonthly,
			PeriodAnchor: "2025-2", PeriodCount: 11, Version: 4,
		}
		store.On("GetOrCreate", mock.Anything, "user-1").Return(first, nil).Once()
		store.On("GetOrCreate", mock.Anything, "user-1").Return(second, nil).Once()
		store.On("Update", mock.Anything, mock.MatchedBy(func(r *types.EntitlementRecord) bool {
			return r.Version == 3
		})).Return(conflictErr()).Once()
		store.On("Update", mock.Anything, mock.MatchedBy(func(r *types.EntitlementRecord) bool {
			return r.Version == 4 && r.PeriodCount == 12
		})).Return(nil).Once()

		decision, err := newTestService(store).Consume(ctx, "user-1", types.ActionAnalyze)

		require.NoError(t, err)
		require.True(t, decision.Allowed)
		assert.Equal(t, 12, decision.Updated.PeriodCount)
		store.AssertExpectations(t)
	})

	t.Run("retry denies when the fresh read hits the ceiling", func(t *testing.T) {
		store := new(mockStore)
		lastUnit := &types.EntitlementRecord{
			UserID: "user-1", PlanType: types.PlanPro, ProSubType: types.ProSubMonthly,
			PeriodAnchor: "2025-2", PeriodCount: 29, Version: 5,
		}
		ceiling := &types.EntitlementRecord{
			UserID: "user-1", PlanType: types.PlanPro, ProSubType: types.ProSubMonthly,
			PeriodAnchor: "2025-2", PeriodCount: 30, Version: 6,
		}
		store.On("GetOrCreate", mock.Anything, "user-1").Return(lastUnit, nil).Once()
		store.On("GetOrCreate", mock.Anything, "user-1").Return(ceiling, nil).Once()
		store.On("Update", mock.Anything, mock.Anything).Return(conflictErr()).Once()

		decision, err := newTestService(store).Consume(ctx, "user-1", types.ActionAnalyze)

		require.NoError(t, err)
		require.False(t, decision.Allowed)
		assert.Equal(t, types.ErrCodeProLimitReached, decision.Reason)
		store.AssertExpectations(t)
	})

	t.Run("non-conflict update failure is swallowed", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetOrCreate", mock.Anything, "user-1").
			Return(types.DefaultEntitlement("user-1"), nil).Once()
		store.On("Update", mock.Anything, mock.Anything).
			Return(types.NewAppError(types.ErrCodeInternalDB, "write failed", errors.New("io timeout"))).Once()

		decision, err := newTestService(store).Consume(ctx, "user-1", types.ActionAnalyze)

		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		store.AssertExpectations(t)
	})

	t.Run("read failure degrades to the trial default", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetOrCreate", mock.Anything, "user-1").
			Return(nil, types.NewAppError(types.ErrCodeInternalDB, "read failed", nil)).Once()
		store.On("Update", mock.Anything, mock.MatchedBy(func(r *types.EntitlementRecord) bool {
			return r.PlanType == types.PlanTrial && r.LifetimeAnalysisCount == 1
		})).Return(nil).Once()

		decision, err := newTestService(store).Consume(ctx, "user-1", types.ActionAnalyze)

		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		store.AssertExpectations(t)
	})

	t.Run("exhausted retries return the last allowed decision", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetOrCreate", mock.Anything, "user-1").
			Return(types.DefaultEntitlement("user-1"), nil).Times(consumeMaxAttempts)
		store.On("Update", mock.Anything, mock.Anything).
			Return(conflictErr()).Times(consumeMaxAttempts)

		decision, err := newTestService(store).Consume(ctx, "user-1", types.ActionAnalyze)

		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		store.AssertExpectations(t)
	})
}

func TestServiceCurrent(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored record", func(t *testing.T) {
		store := new(mockStore)
		record := &types.EntitlementRecord{UserID: "user-1", PlanType: types.PlanPro, ProSubType: types.ProSubYearly}
		store.On("GetOrCreate", mock.Anything, "user-1").Return(record, nil).Once()

		got := newTestService(store).Current(ctx, "user-1")

		assert.Equal(t, record, got)
	})

	t.Run("defaults to trial on read failure", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetOrCreate", mock.Anything, "user-1").
			Return(nil, errors.New("connection refused")).Once()

		got := newTestService(store).Current(ctx, "user-1")

		assert.Equal(t, types.PlanTrial, got.PlanType)
		assert.Equal(t, "user-1", got.UserID)
	})
}

func TestServiceCheckPlanTransition(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		plan     types.PlanType
		sub      types.ProSubType
		cycle    types.BillingCycle
		wantCode types.ErrorCode
	}{
		{name: "trial may buy monthly", plan: types.PlanTrial, cycle: types.CycleMonth},
		{name: "trial may buy yearly", plan: types.PlanTrial, cycle: types.CycleYear},
		{name: "basic may buy yearly", plan: types.PlanBasic, cycle: types.CycleYear},
		{
			name: "yearly pro blocked from any purchase",
			plan: types.PlanPro, sub: types.ProSubYearly, cycle: types.CycleYear,
			wantCode: types.ErrCodeAlreadyBestPlan,
		},
		{
			name: "yearly pro blocked from monthly too",
			plan: types.PlanPro, sub: types.ProSubYearly, cycle: types.CycleMonth,
			wantCode: types.ErrCodeAlreadyBestPlan,
		},
		{
			name: "monthly pro blocked from re-buying monthly",
			plan: types.PlanPro, sub: types.ProSubMonthly, cycle: types.CycleMonth,
			wantCode: types.ErrCodeNoUpgradeAvailable,
		},
		{
			name: "monthly pro may upgrade to yearly",
			plan: types.PlanPro, sub: types.ProSubMonthly, cycle: types.CycleYear,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockStore)
			store.On("GetOrCreate", mock.Anything, "user-1").
				Return(&types.EntitlementRecord{
					UserID: "user-1", PlanType: tt.plan, ProSubType: tt.sub,
				}, nil).Once()

			err := newTestService(store).CheckPlanTransition(ctx, "user-1", tt.cycle)

			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}
