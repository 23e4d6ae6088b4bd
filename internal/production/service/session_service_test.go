package service

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionRollups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.order(t, "A", intp(90))
	b := f.order(t, "B", nil)
	c := f.order(t, "C", intp(0))

	detail, err := f.svc.Sessions.Create(ctx, &CreateSessionRequest{
		Name:     "Friday plate",
		OrderIDs: []string{a.ID, b.ID, c.ID, a.ID},
		Notes:    strp("PLA only"),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.SessionPending, detail.Status)
	assert.Equal(t, 3, detail.OrderCount)
	assert.Equal(t, 90, detail.TotalEstimatedTime)
	assert.Equal(t, 0, detail.TotalActualTime)
	assert.Len(t, detail.Orders, 3)

	for _, id := range []string{a.ID, b.ID, c.ID} {
		o, err := f.svc.Orders.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, o.PrintSessionID)
		assert.Equal(t, detail.ID, *o.PrintSessionID)
	}
}

func TestCreateSessionTwoOrders(t *testing.T) {
	f := newFixture(t)
	a := f.order(t, "A", intp(30))
	b := f.order(t, "B", intp(45))

	detail, err := f.svc.Sessions.Create(context.Background(), &CreateSessionRequest{OrderIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)
	assert.Equal(t, 2, detail.OrderCount)
	assert.Equal(t, 75, detail.TotalEstimatedTime)
	assert.NotEmpty(t, detail.Name)
}

func TestCreateSessionAlreadyAssignedWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.order(t, "A", nil)
	b := f.order(t, "B", nil)
	c := f.order(t, "C", nil)

	first, err := f.svc.Sessions.Create(ctx, &CreateSessionRequest{Name: "first", OrderIDs: []string{a.ID}})
	require.NoError(t, err)

	_, err = f.svc.Sessions.Create(ctx, &CreateSessionRequest{Name: "second", OrderIDs: []string{b.ID, a.ID, c.ID}})
	require.ErrorIs(t, err, ErrAlreadyAssigned)

	sessions, err := f.svc.Sessions.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, first.ID, sessions[0].ID)

	got, err := f.svc.Orders.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PrintSessionID)
}

func TestCreateSessionEmptySelection(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Sessions.Create(context.Background(), &CreateSessionRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrEmptySelection)
	_, err = f.svc.Sessions.Create(context.Background(), &CreateSessionRequest{OrderIDs: []string{" ", ""}})
	assert.ErrorIs(t, err, ErrEmptySelection)
	_, err = f.svc.Sessions.Create(context.Background(), &CreateSessionRequest{OrderIDs: []string{"missing"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionFollowsMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.order(t, "A", intp(10))
	b := f.order(t, "B", intp(20))
	detail, err := f.svc.Sessions.Create(ctx, &CreateSessionRequest{OrderIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)

	f.transition(t, a.ID, entity.StatusPrinting)
	got, err := f.svc.Sessions.Get(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionActive, got.Status)
	require.NotNil(t, got.StartedAt)

	f.clock.Advance(15 * time.Minute)
	f.transition(t, a.ID, entity.StatusPrinted)
	_, err = f.svc.Orders.SetEstimatedTime(ctx, b.ID, 25)
	require.NoError(t, err)

	got, err = f.svc.Sessions.Get(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionActive, got.Status)
	assert.Equal(t, 35, got.TotalEstimatedTime)
	assert.Equal(t, 15, got.TotalActualTime)

	f.transition(t, b.ID, entity.StatusPrinting)
	f.transition(t, b.ID, entity.StatusPrinted)
	got, err = f.svc.Sessions.Recompute(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	// 已完成的批次不会回退
	f.transition(t, b.ID, entity.StatusShipped)
	got, err = f.svc.Sessions.Get(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionCompleted, got.Status)
}

func TestSessionFailedPolicy(t *testing.T) {
	run := func(policy string) string {
		ctx := context.Background()
		f := newFixtureWithPolicy(t, policy)
		a := f.order(t, "A", nil)
		b := f.order(t, "B", nil)
		detail, err := f.svc.Sessions.Create(ctx, &CreateSessionRequest{OrderIDs: []string{a.ID, b.ID}})
		require.NoError(t, err)

		f.transition(t, a.ID, entity.StatusPrinting)
		f.transition(t, a.ID, entity.StatusPrinted)
		f.transition(t, b.ID, entity.StatusPrinting)
		f.transition(t, b.ID, entity.StatusFailed)

		got, err := f.svc.Sessions.Get(ctx, detail.ID)
		require.NoError(t, err)
		return got.Status
	}

	assert.Equal(t, entity.SessionActive, run("retry"))
	assert.Equal(t, entity.SessionCompleted, run("terminal"))
}

func TestTerminalPolicyFailedBeforeStart(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithPolicy(t, "terminal")
	a := f.order(t, "A", nil)
	detail, err := f.svc.Sessions.Create(ctx, &CreateSessionRequest{OrderIDs: []string{a.ID}})
	require.NoError(t, err)

	f.transition(t, a.ID, entity.StatusFailed)
	got, err := f.svc.Sessions.Get(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionCompleted, got.Status)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, *got.CompletedAt, *got.StartedAt)
}

func TestTerminalPolicyRejectsRetryInCompletedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithPolicy(t, "terminal")
	a := f.order(t, "A", nil)
	b := f.order(t, "B", nil)
	loose := f.order(t, "C", nil)
	detail, err := f.svc.Sessions.Create(ctx, &CreateSessionRequest{OrderIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)

	// 批次未完成时失败订单仍可重打
	f.transition(t, a.ID, entity.StatusPrinting)
	f.transition(t, a.ID, entity.StatusFailed)
	f.transition(t, a.ID, entity.StatusPrinting)
	f.transition(t, a.ID, entity.StatusFailed)

	f.transition(t, b.ID, entity.StatusPrinting)
	f.transition(t, b.ID, entity.StatusPrinted)
	got, err := f.svc.Sessions.Get(ctx, detail.ID)
	require.NoError(t, err)
	require.Equal(t, entity.SessionCompleted, got.Status)

	_, err = f.svc.Orders.Transition(ctx, a.ID, &TransitionRequest{Status: entity.StatusPrinting})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	o, err := f.svc.Orders.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, o.ProductionStatus)
	assert.Equal(t, 2, o.PrintFailuresCount)

	// 未分配批次的订单不受影响
	f.transition(t, loose.ID, entity.StatusFailed)
	f.transition(t, loose.ID, entity.StatusPrinting)
}

func TestListSessionsByStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.order(t, "A", nil)
	b := f.order(t, "B", nil)
	_, err := f.svc.Sessions.Create(ctx, &CreateSessionRequest{Name: "one", OrderIDs: []string{a.ID}})
	require.NoError(t, err)
	_, err = f.svc.Sessions.Create(ctx, &CreateSessionRequest{Name: "two", OrderIDs: []string{b.ID}})
	require.NoError(t, err)
	f.transition(t, b.ID, entity.StatusPrinting)

	active, err := f.svc.Sessions.List(ctx, entity.SessionActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "two", active[0].Name)

	all, err := f.svc.Sessions.List(ctx, "ALL")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.Sessions.List(ctx, "DONE")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDeleteSessionOnlyWhenPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.order(t, "A", nil)
	b := f.order(t, "B", nil)
	pending, err := f.svc.Sessions.Create(ctx, &CreateSessionRequest{OrderIDs: []string{a.ID}})
	require.NoError(t, err)
	active, err := f.svc.Sessions.Create(ctx, &CreateSessionRequest{OrderIDs: []string{b.ID}})
	require.NoError(t, err)
	f.transition(t, b.ID, entity.StatusPrinting)

	require.NoError(t, f.svc.Sessions.Delete(ctx, pending.ID))
	got, err := f.svc.Orders.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PrintSessionID)
	_, err = f.svc.Sessions.Get(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.svc.Sessions.Delete(ctx, active.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	got, err = f.svc.Orders.Get(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PrintSessionID)

	// 释放后的订单可以进入新批次
	_, err = f.svc.Sessions.Create(ctx, &CreateSessionRequest{OrderIDs: []string{a.ID}})
	assert.NoError(t, err)
}
