package dispatch

import (
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goblinclob/engine/internal/clob/engine"
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	baseToken  = common.HexToAddress("0x000000000000000000000000000000000000b1")
	quoteToken = common.HexToAddress("0x000000000000000000000000000000000000c1")
	caller     = common.HexToAddress("0x0000000000000000000000000000000000001a")
)

func encodeDeposit(token, sender, recipient common.Address, lots uint64) []byte {
	buf := make([]byte, 68)
	copy(buf[0:20], token.Bytes())
	copy(buf[20:40], sender.Bytes())
	copy(buf[40:60], recipient.Bytes())
	binary.LittleEndian.PutUint64(buf[60:68], lots)
	return buf
}

func encodePlace(side uint8, tickValue uint32, qty uint64, flags uint8) []byte {
	buf := make([]byte, 13)
	buf[0] = side
	buf[1] = byte(tickValue >> 16)
	buf[2] = byte(tickValue >> 8)
	buf[3] = byte(tickValue)
	binary.LittleEndian.PutUint64(buf[4:12], qty)
	buf[12] = flags
	return buf
}

func TestDispatchDepositThenPlacePostOnly(t *testing.T) {
	eng := engine.New(slot.NewMemoryStorage(), baseToken, quoteToken)

	calldata := []byte{2, byte(SelectorDeposit)}
	calldata = append(calldata, encodeDeposit(quoteToken, caller, caller, 1_000_000)...)
	calldata = append(calldata, byte(SelectorPlacePostOnly))
	calldata = append(calldata, encodePlace(0, 100, 5, 0)...)

	result, err := Dispatch(eng, caller, calldata)
	require.NoError(t, err)
	require.Len(t, result.Calls, 2)
	assert.Equal(t, uint8(0), result.Calls[0].ExitCode)
	assert.Equal(t, uint8(0), result.Calls[1].ExitCode)
}

func TestDispatchUnknownSelectorIsProtocolError(t *testing.T) {
	eng := engine.New(slot.NewMemoryStorage(), baseToken, quoteToken)
	calldata := []byte{1, 0xFF}
	_, err := Dispatch(eng, caller, calldata)
	require.Error(t, err)
}

func TestDispatchTruncatedPayloadIsProtocolError(t *testing.T) {
	eng := engine.New(slot.NewMemoryStorage(), baseToken, quoteToken)
	calldata := []byte{1, byte(SelectorDeposit), 1, 2, 3}
	_, err := Dispatch(eng, caller, calldata)
	require.Error(t, err)
}

func TestDispatchGetTraderStateReturnsEncodedBalance(t *testing.T) {
	eng := engine.New(slot.NewMemoryStorage(), baseToken, quoteToken)
	eng.Deposit(caller, quoteToken, 42)

	payload := make([]byte, 40)
	copy(payload[0:20], caller.Bytes())
	copy(payload[20:40], quoteToken.Bytes())

	calldata := []byte{1, byte(SelectorGetTraderState)}
	calldata = append(calldata, payload...)

	result, err := Dispatch(eng, caller, calldata)
	require.NoError(t, err)
	require.Len(t, result.Calls, 1)
	assert.Equal(t, uint8(0), result.Calls[0].ExitCode)
	assert.Equal(t, uint64(42), binary.BigEndian.Uint64(result.Calls[0].Output[0:8]))
}
