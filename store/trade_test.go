package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newOpenTrade(t *testing.T, st *Store, tenantID, symbol, side string, entryPrice, qty float64) *Trade {
	t.Helper()
	trade := &Trade{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Symbol:        symbol,
		Side:          side,
		EntryPrice:    entryPrice,
		EntryQuantity: qty,
		EntryTime:     nowMs(),
		SignalHash:    uuid.NewString(),
	}
	require.NoError(t, st.Trade().Create(nil, trade))
	return trade
}

func TestCreate_DefaultsStatusAndRemainingQuantity(t *testing.T) {
	st := newTestStore(t)
	trade := newOpenTrade(t, st, "", "BTCUSDT", "LONG", 100, 1)
	assert := require.New(t)
	assert.Equal("OPEN", trade.Status)
	assert.Equal(1.0, trade.RemainingQuantity)
}

func TestFindOpenTrade_ReturnsNilWhenNone(t *testing.T) {
	st := newTestStore(t)
	trade, err := st.Trade().FindOpenTrade(nil, "", "BTCUSDT")
	require.NoError(t, err)
	require.Nil(t, trade)
}

func TestFindOpenTrade_ScopesByTenantAndSymbol(t *testing.T) {
	st := newTestStore(t)
	newOpenTrade(t, st, "tenantA", "BTCUSDT", "LONG", 100, 1)
	newOpenTrade(t, st, "tenantB", "BTCUSDT", "LONG", 100, 1)

	found, err := st.Trade().FindOpenTrade(nil, "tenantA", "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "tenantA", found.TenantID)

	missing, err := st.Trade().FindOpenTrade(nil, "tenantA", "ETHUSDT")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestApplyDCA_SizeWeightedAveraging(t *testing.T) {
	st := newTestStore(t)
	trade := newOpenTrade(t, st, "", "BTCUSDT", "LONG", 100, 1)

	// averaging in a second 1-unit entry at 120 => new avg = (100*1+120*1)/2 = 110
	updated, err := st.Trade().ApplyDCA(nil, trade.ID, 120, 1, 95, 2, 0.5)
	require.NoError(t, err)
	require.InDelta(t, 110.0, updated.EntryPrice, 1e-9)
	require.InDelta(t, 2.0, updated.EntryQuantity, 1e-9)
	require.Equal(t, 1, updated.DcaCount)
	require.Equal(t, 95.0, updated.StopLoss)
}

func TestApplyDCA_UsesRemainingQuantityAfterPartialClose(t *testing.T) {
	st := newTestStore(t)
	trade := newOpenTrade(t, st, "", "BTCUSDT", "LONG", 100, 2)
	require.NoError(t, st.Trade().PartialClose(nil, trade.ID, 1, 0))

	// remaining qty is 1 after a 1-unit partial close; DCA 1 more unit at 120
	updated, err := st.Trade().ApplyDCA(nil, trade.ID, 120, 1, 95, 0, 0)
	require.NoError(t, err)
	require.InDelta(t, 110.0, updated.EntryPrice, 1e-9, "averaging must use remainingQuantity, not the original entryQuantity")
}

func TestPartialClose_AccumulatesAndKeepsOpen(t *testing.T) {
	st := newTestStore(t)
	trade := newOpenTrade(t, st, "", "BTCUSDT", "LONG", 100, 2)
	require.NoError(t, st.Trade().PartialClose(nil, trade.ID, 1, 0.1))

	found, err := st.Trade().FindOpenTrade(nil, "", "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, 1.0, found.RemainingQuantity)
	require.Equal(t, 1.0, found.TotalClosedQuantity)
}

func TestComputeCloseResult_LongAndShortDirection(t *testing.T) {
	long := ComputeCloseResult("LONG", 100, 110, 1, 0, 0)
	require.Equal(t, 10.0, long.GrossProfit)

	short := ComputeCloseResult("SHORT", 100, 110, 1, 0, 0)
	require.Equal(t, -10.0, short.GrossProfit)
}

func TestComputeCloseResult_NetProfitSubtractsCommission(t *testing.T) {
	res := ComputeCloseResult("LONG", 100, 110, 1, 0.5, 0.5)
	require.Equal(t, 10.0, res.GrossProfit)
	require.Equal(t, 1.0, res.Commission)
	require.Equal(t, 9.0, res.NetProfit)
}

func TestFullClose_MarksClosedAndStampsPnL(t *testing.T) {
	st := newTestStore(t)
	trade := newOpenTrade(t, st, "", "BTCUSDT", "LONG", 100, 1)

	closed, res, err := st.Trade().FullClose(nil, trade.ID, "order-1", "SL_TRIGGERED", 90, 1, 0.1)
	require.NoError(t, err)
	require.Equal(t, "CLOSED", closed.Status)
	require.Equal(t, -10.0, res.GrossProfit)
	require.Equal(t, "order-1", closed.ExitOrderID)

	stillOpen, err := st.Trade().FindOpenTrade(nil, "", "BTCUSDT")
	require.NoError(t, err)
	require.Nil(t, stillOpen)
}

func TestFullClose_FallsBackToRemainingThenEntryQuantity(t *testing.T) {
	st := newTestStore(t)
	trade := newOpenTrade(t, st, "", "BTCUSDT", "LONG", 100, 2)
	require.NoError(t, st.Trade().PartialClose(nil, trade.ID, 1, 0))

	_, _, err := st.Trade().FullClose(nil, trade.ID, "order-1", "MANUAL", 110, 0, 0)
	require.NoError(t, err)

	var reread Trade
	require.NoError(t, st.GormDB().Where("id = ?", trade.ID).First(&reread).Error)
	require.Equal(t, 1.0, reread.ExitQuantity, "exitQty=0 must fall back to remainingQuantity")
}

func TestCancel_MarksCancelledWithoutPnL(t *testing.T) {
	st := newTestStore(t)
	trade := newOpenTrade(t, st, "", "BTCUSDT", "LONG", 100, 1)
	require.NoError(t, st.Trade().Cancel(nil, trade.ID))

	var reread Trade
	require.NoError(t, st.GormDB().Where("id = ?", trade.ID).First(&reread).Error)
	require.Equal(t, "CANCELLED", reread.Status)
	require.Equal(t, 0.0, reread.NetProfit)
}

func TestExistsBySignalHashAndCreatedAtAfter(t *testing.T) {
	st := newTestStore(t)
	trade := newOpenTrade(t, st, "", "BTCUSDT", "LONG", 100, 1)

	exists, err := st.Trade().ExistsBySignalHashAndCreatedAtAfter(nil, trade.SignalHash, trade.CreatedAt-1000)
	require.NoError(t, err)
	require.True(t, exists)

	notExists, err := st.Trade().ExistsBySignalHashAndCreatedAtAfter(nil, "no-such-hash", 0)
	require.NoError(t, err)
	require.False(t, notExists)
}

func TestSumNegativeNetProfitBetween_OnlySumsNegativeClosed(t *testing.T) {
	st := newTestStore(t)
	winner := newOpenTrade(t, st, "", "BTCUSDT", "LONG", 100, 1)
	loser := newOpenTrade(t, st, "", "ETHUSDT", "LONG", 100, 1)

	_, _, err := st.Trade().FullClose(nil, winner.ID, "o1", "TP", 110, 1, 0)
	require.NoError(t, err)
	_, _, err = st.Trade().FullClose(nil, loser.ID, "o2", "SL", 90, 1, 0)
	require.NoError(t, err)

	sum, err := st.Trade().SumNegativeNetProfitBetween(nil, "", 0, nowMs()+1000)
	require.NoError(t, err)
	require.Equal(t, -10.0, sum)
}
