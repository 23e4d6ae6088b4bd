package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/bitfantasy/printops/internal/production/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(mpID string, priority int, created time.Time) *entity.Order {
	return &entity.Order{
		ID:                 uuid.New().String(),
		MarketplaceOrderID: mpID,
		ProductionStatus:   entity.StatusQueued,
		Priority:           priority,
		TotalFilamentUsed:  decimal.Zero,
		CreatedAt:          created,
	}
}

func TestGormOrders(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewGormStore(db)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	late := newOrder("M-late", 3, base.Add(time.Hour))
	urgent := newOrder("M-urgent", 1, base.Add(2*time.Hour))
	early := newOrder("M-early", 3, base)
	for _, o := range []*entity.Order{late, urgent, early} {
		require.NoError(t, store.Orders().Create(ctx, o))
	}

	orders, err := store.Orders().FindByStatusAndPriority(ctx, repository.OrderQuery{Status: entity.StatusQueued})
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, []string{urgent.ID, early.ID, late.ID}, []string{orders[0].ID, orders[1].ID, orders[2].ID})

	err = store.Orders().Create(ctx, newOrder("M-late", 3, base))
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = store.Orders().FindByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := store.Orders().FindByMarketplaceID(ctx, "M-urgent")
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, got.ID)
}

func TestGormTransactionRollback(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewGormStore(db)
	ctx := context.Background()

	f := &entity.Filament{
		ID:                uuid.New().String(),
		Material:          "PLA",
		Color:             "Red",
		Unit:              "g",
		InitialAmount:     decimal.NewFromInt(1000),
		CurrentAmount:     decimal.NewFromInt(1000),
		LowStockThreshold: decimal.NewFromInt(100),
	}
	require.NoError(t, store.Filaments().Create(ctx, f))

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(tx repository.Store) error {
		locked, err := tx.Filaments().FindByID(ctx, f.ID)
		if err != nil {
			return err
		}
		locked.CurrentAmount = decimal.NewFromInt(50)
		if err := tx.Filaments().Update(ctx, locked); err != nil {
			return err
		}
		if err := tx.Filaments().AppendUsage(ctx, &entity.FilamentUsage{
			ID:         uuid.New().String(),
			FilamentID: f.ID,
			AmountUsed: decimal.NewFromInt(950),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	reloaded, err := store.Filaments().FindByID(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.CurrentAmount.Equal(decimal.NewFromInt(1000)))
	assert.False(t, reloaded.IsLowStock)

	usages, err := store.Filaments().ListUsage(ctx, repository.UsageListParams{FilamentID: f.ID})
	require.NoError(t, err)
	assert.Empty(t, usages)
}

func TestGormLowStockAndSessions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewGormStore(db)
	ctx := context.Background()

	low := &entity.Filament{
		ID: uuid.New().String(), Material: "PETG", Color: "Blue", Unit: "g",
		InitialAmount: decimal.NewFromInt(1000), CurrentAmount: decimal.NewFromInt(100),
		LowStockThreshold: decimal.NewFromInt(100),
	}
	ok := &entity.Filament{
		ID: uuid.New().String(), Material: "PLA", Color: "Blue", Unit: "g",
		InitialAmount: decimal.NewFromInt(1000), CurrentAmount: decimal.NewFromInt(900),
		LowStockThreshold: decimal.NewFromInt(100),
	}
	require.NoError(t, store.Filaments().Create(ctx, low))
	require.NoError(t, store.Filaments().Create(ctx, ok))

	list, err := store.Filaments().List(ctx, repository.FilamentListParams{LowStock: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, low.ID, list[0].ID)
	assert.True(t, list[0].IsLowStock)

	sess := &entity.PrintSession{ID: uuid.New().String(), Name: "Plate", Status: entity.SessionPending}
	require.NoError(t, store.Sessions().Create(ctx, sess))
	o := newOrder("M-1", 3, time.Now())
	o.PrintSessionID = &sess.ID
	require.NoError(t, store.Orders().Create(ctx, o))

	members, err := store.Orders().FindBySessionID(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	require.NoError(t, store.Sessions().Delete(ctx, sess.ID))
	assert.ErrorIs(t, store.Sessions().Delete(ctx, sess.ID), repository.ErrNotFound)
}

func TestGormAlertSettings(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewGormStore(db)
	ctx := context.Background()

	_, err := store.Alerts().GetSettings(ctx)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	to := "ops@example.com"
	require.NoError(t, store.Alerts().SaveSettings(ctx, &entity.AlertSettings{EmailEnabled: true, EmailTo: &to}))
	got, err := store.Alerts().GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.DefaultAlertSettingsID, got.ID)
	assert.True(t, got.EmailEnabled)

	now := time.Now()
	require.NoError(t, store.Printers().Upsert(ctx, &entity.Printer{ID: "p1", Name: "P1", Status: entity.PrinterOffline, LastSeenAt: &now}))
	require.NoError(t, store.Printers().Upsert(ctx, &entity.Printer{ID: "p1", Name: "P1", Status: entity.PrinterIdle, LastSeenAt: &now}))
	printers, err := store.Printers().List(ctx)
	require.NoError(t, err)
	require.Len(t, printers, 1)
	assert.Equal(t, entity.PrinterIdle, printers[0].Status)
}
