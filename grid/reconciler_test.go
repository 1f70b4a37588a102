package grid

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(gw *mockGateway) *Reconciler {
	return NewReconciler("XRPUSDC", gw, nil)
}

func TestReconcileFillRemovedFromMirror(t *testing.T) {
	gw := newMockGateway()
	gw.fills = []Fill{{OrderID: "a1", Symbol: "XRPUSDC", Side: SideBuy, Price: 98, Amount: 10}}

	m := NewMirror()
	m.Insert(mirrorOrder("a1", SideBuy, 98, time.Now()))

	res, err := newTestReconciler(gw).Reconcile(m)
	require.NoError(t, err)

	assert.False(t, m.Has(LevelOf(98)), "filled level must leave the mirror")
	require.Contains(t, res.Filled, LevelOf(98))
	assert.Equal(t, StatusFilled, res.Filled[LevelOf(98)].Status)
}

func TestReconcileAdoptsVenueOnlyOrder(t *testing.T) {
	gw := newMockGateway()
	gw.addOpen(Order{ID: "x1", Symbol: "XRPUSDC", Side: SideSell, Level: LevelOf(105), Amount: 10})

	m := NewMirror()
	res, err := newTestReconciler(gw).Reconcile(m)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Adopted)
	require.True(t, m.Has(LevelOf(105)), "venue order must be adopted into the mirror")
	assert.Equal(t, "x1", m[LevelOf(105)].ID)
	assert.Equal(t, StatusOpen, m[LevelOf(105)].Status)
}

func TestReconcileRetainsAmbiguousOrder(t *testing.T) {
	// 交易所查不到也给不出终态：保留并标记 unknown，绝不删除。
	gw := newMockGateway()
	gw.statusErr["gone"] = errors.New("timeout")

	m := NewMirror()
	m.Insert(mirrorOrder("gone", SideBuy, 97, time.Now()))

	res, err := newTestReconciler(gw).Reconcile(m)
	require.NoError(t, err)

	require.True(t, m.Has(LevelOf(97)), "ambiguous order must be retained")
	assert.Equal(t, StatusUnknown, m[LevelOf(97)].Status)
	assert.Equal(t, 1, m[LevelOf(97)].UnknownStreak)
	assert.Equal(t, 1, res.Unresolved)
}

func TestReconcileCancelConfirmedRemoved(t *testing.T) {
	gw := newMockGateway()
	gw.statuses["c1"] = StatusCanceled

	m := NewMirror()
	m.Insert(mirrorOrder("c1", SideSell, 102, time.Now()))

	res, err := newTestReconciler(gw).Reconcile(m)
	require.NoError(t, err)

	assert.False(t, m.Has(LevelOf(102)))
	assert.Contains(t, res.NewlyCanceled, LevelOf(102))
}

func TestReconcileRefreshesLiveOrders(t *testing.T) {
	gw := newMockGateway()
	gw.addOpen(Order{ID: "live", Symbol: "XRPUSDC", Side: SideBuy, Level: LevelOf(99), Amount: 10, Remaining: 4})

	m := NewMirror()
	local := mirrorOrder("live", SideBuy, 99, time.Now())
	local.Remaining = 10
	local.UnknownStreak = 2
	m.Insert(local)

	_, err := newTestReconciler(gw).Reconcile(m)
	require.NoError(t, err)

	assert.Equal(t, 4.0, m[LevelOf(99)].Remaining, "remaining must follow the venue")
	assert.Equal(t, 0, m[LevelOf(99)].UnknownStreak, "live confirmation resets the streak")
}

func TestReconcileIdempotent(t *testing.T) {
	gw := newMockGateway()
	gw.addOpen(Order{ID: "b1", Symbol: "XRPUSDC", Side: SideBuy, Level: LevelOf(99), Amount: 10})
	gw.addOpen(Order{ID: "s1", Symbol: "XRPUSDC", Side: SideSell, Level: LevelOf(101), Amount: 10})

	m := NewMirror()
	m.Insert(mirrorOrder("b1", SideBuy, 99, time.Now()))

	rec := newTestReconciler(gw)
	first, err := rec.Reconcile(m)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Adopted)

	// 交易所状态不变时，第二轮不得产生任何变更。
	before := m.Clone()
	second, err := rec.Reconcile(m)
	require.NoError(t, err)
	assert.Empty(t, second.Filled)
	assert.Empty(t, second.NewlyCanceled)
	assert.Zero(t, second.Adopted)
	assert.Zero(t, second.Unresolved)
	assert.Equal(t, len(before), len(m))
	for lvl, o := range before {
		require.True(t, m.Has(lvl))
		assert.Equal(t, o.ID, m[lvl].ID)
	}
}

func TestReconcileBulkFetchFailureLeavesMirrorUntouched(t *testing.T) {
	gw := newMockGateway()
	gw.openErr = errors.New("venue 5xx")

	m := NewMirror()
	m.Insert(mirrorOrder("a", SideBuy, 99, time.Now()))
	before := m.Clone()

	_, err := newTestReconciler(gw).Reconcile(m)
	require.Error(t, err)

	require.Equal(t, len(before), len(m))
	for lvl, o := range before {
		assert.Equal(t, *o, *m[lvl])
	}

	// 成交批量拉取失败同样整轮放弃。
	gw.openErr = nil
	gw.fillsErr = errors.New("venue 5xx")
	_, err = newTestReconciler(gw).Reconcile(m)
	require.Error(t, err)
	assert.Equal(t, len(before), len(m))
}
