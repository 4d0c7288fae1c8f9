package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTradeEvent_AppendAndForTradeOrdering(t *testing.T) {
	st := newTestStore(t)
	trade := newOpenTrade(t, st, "", "BTCUSDT", "LONG", 100, 1)

	require.NoError(t, st.Event().Append(nil, &TradeEvent{TradeID: trade.ID, EventType: "ENTRY", Timestamp: 1}))
	require.NoError(t, st.Event().Append(nil, &TradeEvent{TradeID: trade.ID, EventType: "SL_TRIGGERED", Timestamp: 2}))

	events, err := st.Event().ForTrade(trade.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "ENTRY", events[0].EventType)
	require.Equal(t, "SL_TRIGGERED", events[1].EventType)
}

func TestTradeEvent_AppendDefaultsTimestamp(t *testing.T) {
	st := newTestStore(t)
	trade := newOpenTrade(t, st, "", "BTCUSDT", "LONG", 100, 1)

	e := &TradeEvent{TradeID: trade.ID, EventType: "ENTRY"}
	require.NoError(t, st.Event().Append(nil, e))
	require.NotZero(t, e.Timestamp)
}

func TestSignalAudit_RecordStampsCreatedAt(t *testing.T) {
	st := newTestStore(t)
	a := &SignalAudit{Symbol: "BTCUSDT", Action: "ENTRY", ExecutionStatus: "EXECUTED"}
	require.NoError(t, st.Audit().Record(a))
	require.NotZero(t, a.CreatedAt)
}
