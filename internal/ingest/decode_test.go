package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeTickMockFlagPreserved(t *testing.T) {
	raw := []byte(`{"symbol":"NIFTY","expiry":"2025-11-06","strike":24700,"option_side":"CE","last_price":120.5,"volume":10,"ts":1730800000,"is_mock":true}`)
	tick, err := decodeTick(raw)
	require.NoError(t, err)
	require.True(t, tick.IsMock)
	require.Equal(t, "NIFTY", tick.Instrument.Symbol)
}

func TestDecodeTickRejectsMissingFields(t *testing.T) {
	_, err := decodeTick([]byte(`{"strike":100}`))
	require.Error(t, err)
}

func TestDecodeTickRejectsUnknownSide(t *testing.T) {
	raw := []byte(`{"symbol":"NIFTY","expiry":"2025-11-06","strike":100,"option_side":"XX","ts":1}`)
	_, err := decodeTick(raw)
	require.Error(t, err)
}

func TestDecodeUnderlyingMockFilter(t *testing.T) {
	mock := []byte(`{"symbol":"NIFTY","close":24700,"ts":1730800000,"is_mock":true}`)
	real := []byte(`{"symbol":"NIFTY","close":24710,"ts":1730800001,"is_mock":false}`)

	mockBar, err := decodeUnderlying(mock)
	require.NoError(t, err)
	require.True(t, mockBar.IsMock)

	realBar, err := decodeUnderlying(real)
	require.NoError(t, err)
	require.False(t, realBar.IsMock)
	require.Equal(t, 24710.0, realBar.Close)
}
