// Package dispatch implements L6: decoding the packed calldata byte
// sequence described in spec section 6, fanning each call out to the
// engine, and producing the transaction's exit code. Dispatch never
// touches storage directly; it only parses bytes and calls engine.
package dispatch

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/goblinclob/engine/internal/clob/cloberrors"
	"github.com/goblinclob/engine/internal/clob/engine"
	"github.com/goblinclob/engine/internal/clob/tick"
	"github.com/goblinclob/engine/pkg/metrics"
)

// Selector identifies one call within a calldata batch.
type Selector uint8

const (
	SelectorDeposit         Selector = 0x01
	SelectorWithdraw        Selector = 0x02
	SelectorPlacePostOnly   Selector = 0x03
	SelectorPlaceLimit      Selector = 0x04
	SelectorCancel          Selector = 0x05
	SelectorReduce          Selector = 0x06
	SelectorGetTraderState  Selector = 0x0A
	SelectorCollectFees     Selector = 0x0B
)

// addressLen, u64Len etc document the fixed-width fields of the packed
// calldata encoding.
const (
	addressLen = 20
	u64Len     = 8
	tickLen    = 4
	orderIDLen = tickLen + 1
)

var validate = validator.New()

// CallResult is one call's outcome: its exit code (0 success) and, for
// read-only selectors, the returned bytes.
type CallResult struct {
	Selector Selector
	ExitCode uint8
	Output   []byte
}

// BatchResult is the outcome of dispatching one transaction's calldata.
type BatchResult struct {
	Calls []CallResult
}

// depositPayload mirrors selector 0x01's wire layout, validated before use.
type depositPayload struct {
	Token     common.Address `validate:"required"`
	Sender    common.Address `validate:"required"`
	Recipient common.Address `validate:"required"`
	Lots      uint64
}

type withdrawPayload struct {
	Token     common.Address `validate:"required"`
	Recipient common.Address `validate:"required"`
	Lots      uint64
}

type placeOrderPayload struct {
	Side  tick.Side `validate:"lte=1"`
	Tick  uint32    `validate:"lte=2097151"`
	Qty   uint64    `validate:"gt=0"`
	Flags uint8
}

const flagTrackBlock = 0b0000_0001

type cancelPayload struct {
	Tick              uint32    `validate:"lte=2097151"`
	RestingOrderIndex uint8     `validate:"lte=7"`
	Side              tick.Side `validate:"lte=1"`
}

type reducePayload struct {
	Tick              uint32    `validate:"lte=2097151"`
	RestingOrderIndex uint8     `validate:"lte=7"`
	Side              tick.Side `validate:"lte=1"`
	Lots              uint64    `validate:"gt=0"`
}

type getTraderStatePayload struct {
	Trader common.Address `validate:"required"`
	Token  common.Address `validate:"required"`
}

// Dispatch decodes calldata (num_calls:u8 followed by num_calls repeats of
// selector:u8+payload) and executes each call against eng in order. A
// protocol error (malformed calldata, unknown selector, truncated
// payload) aborts the whole batch and is returned as err; a request error
// returned by a single call is recorded in that call's CallResult and does
// not prevent independent calls in the batch from proceeding.
func Dispatch(eng *engine.Engine, caller common.Address, calldata []byte) (BatchResult, error) {
	start := time.Now()
	defer func() { metrics.DispatchBatchLatency.Observe(time.Since(start).Seconds()) }()

	if len(calldata) < 1 {
		metrics.FailuresByKind.WithLabelValues(cloberrors.KindTruncatedPayload.String()).Inc()
		return BatchResult{}, cloberrors.New(cloberrors.KindTruncatedPayload, "calldata missing num_calls header")
	}
	numCalls := int(calldata[0])
	offset := 1

	var result BatchResult
	for i := 0; i < numCalls; i++ {
		if offset >= len(calldata) {
			metrics.FailuresByKind.WithLabelValues(cloberrors.KindTruncatedPayload.String()).Inc()
			return BatchResult{}, cloberrors.New(cloberrors.KindTruncatedPayload, "calldata truncated before selector byte")
		}
		selector := Selector(calldata[offset])
		offset++

		consumed, callResult, err := dispatchOne(eng, caller, selector, calldata[offset:])
		if err != nil {
			recordFailure(err)
			return BatchResult{}, err
		}
		if callResult.ExitCode != 0 {
			metrics.FailuresByKind.WithLabelValues(cloberrors.Kind(callResult.ExitCode).String()).Inc()
		}
		offset += consumed
		result.Calls = append(result.Calls, callResult)
	}

	return result, nil
}

// recordFailure increments FailuresByKind for an error that aborts the
// batch (protocol-class or invariant-class).
func recordFailure(err error) {
	if ce, ok := err.(*cloberrors.Error); ok {
		metrics.FailuresByKind.WithLabelValues(ce.Kind.String()).Inc()
	}
}

// finishCall turns an engine-layer error into this call's outcome. A
// request-class error (KindSelfTrade, KindInsufficientBalance, ...) is
// recorded as the call's exit code and the batch continues to the next
// call; an invariant-class fault is instead returned as dispatchOne's own
// error, which propagates through Dispatch's batch-abort path, since an
// invariant fault halts the transaction rather than merely failing the
// call that discovered it.
func finishCall(selector Selector, consumed int, cerr error) (int, CallResult, error) {
	if ce, ok := cerr.(*cloberrors.Error); ok && ce.Kind.Class() == cloberrors.ClassInvariant {
		return consumed, CallResult{}, cerr
	}
	return consumed, CallResult{Selector: selector, ExitCode: cloberrors.ExitCode(cerr)}, nil
}

// dispatchOne decodes and executes a single call, returning how many
// payload bytes it consumed. The returned error is non-nil only for
// protocol-class failures (bad selector, truncated payload) and for
// invariant faults (see finishCall); request-class failures are carried in
// callResult.ExitCode.
func dispatchOne(eng *engine.Engine, caller common.Address, selector Selector, payload []byte) (consumed int, callResult CallResult, err error) {
	switch selector {
	case SelectorDeposit:
		const n = addressLen*3 + u64Len
		if len(payload) < n {
			return 0, CallResult{}, cloberrors.New(cloberrors.KindTruncatedPayload, "deposit payload truncated")
		}
		p := depositPayload{
			Token:     common.BytesToAddress(payload[0:20]),
			Sender:    common.BytesToAddress(payload[20:40]),
			Recipient: common.BytesToAddress(payload[40:60]),
			Lots:      binary.LittleEndian.Uint64(payload[60:68]),
		}
		if verr := validate.Struct(p); verr != nil {
			return 0, CallResult{}, cloberrors.Wrap(cloberrors.KindTruncatedPayload, verr, "deposit payload failed validation")
		}
		eng.Deposit(p.Recipient, p.Token, p.Lots)
		return n, CallResult{Selector: selector, ExitCode: 0}, nil

	case SelectorWithdraw:
		const n = addressLen*2 + u64Len
		if len(payload) < n {
			return 0, CallResult{}, cloberrors.New(cloberrors.KindTruncatedPayload, "withdraw payload truncated")
		}
		p := withdrawPayload{
			Token:     common.BytesToAddress(payload[0:20]),
			Recipient: common.BytesToAddress(payload[20:40]),
			Lots:      binary.LittleEndian.Uint64(payload[40:48]),
		}
		if verr := validate.Struct(p); verr != nil {
			return 0, CallResult{}, cloberrors.Wrap(cloberrors.KindTruncatedPayload, verr, "withdraw payload failed validation")
		}
		cerr := eng.Withdraw(p.Recipient, p.Token, p.Lots)
		return finishCall(selector, n, cerr)

	case SelectorPlacePostOnly, SelectorPlaceLimit:
		const n = 1 + 3 + u64Len + 1
		if len(payload) < n {
			return 0, CallResult{}, cloberrors.New(cloberrors.KindTruncatedPayload, "place payload truncated")
		}
		side := tick.Side(payload[0])
		tickValue := uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
		qty := binary.LittleEndian.Uint64(payload[4:12])
		flags := payload[12]

		p := placeOrderPayload{Side: side, Tick: tickValue, Qty: qty, Flags: flags}
		if verr := validate.Struct(p); verr != nil {
			return 0, CallResult{}, cloberrors.Wrap(cloberrors.KindTruncatedPayload, verr, "place payload failed validation")
		}

		t, terr := tick.NewTick(tickValue)
		if terr != nil {
			return n, CallResult{Selector: selector, ExitCode: uint8(cloberrors.KindPriceOutOfBand)}, nil
		}
		trackBlock := flags&flagTrackBlock != 0

		var cerr error
		if selector == SelectorPlacePostOnly {
			_, cerr = eng.PlaceOrder(side, t, caller, qty, true, trackBlock, 0)
		} else {
			var matchResult engine.MatchResult
			matchResult, cerr = eng.MatchOrder(side, caller, qty, &t)
			if cerr == nil {
				if remainder := qty - matchResult.FilledBaseLots; remainder > 0 {
					_, cerr = eng.PlaceOrder(side, t, caller, remainder, false, trackBlock, 0)
				}
			}
		}
		return finishCall(selector, n, cerr)

	case SelectorCancel:
		if len(payload) < orderIDLen+1 {
			return 0, CallResult{}, cloberrors.New(cloberrors.KindTruncatedPayload, "cancel payload truncated")
		}
		tickValue := binary.BigEndian.Uint32(payload[0:4])
		roi := payload[4]
		side := tick.Side(payload[5])

		p := cancelPayload{Tick: tickValue, RestingOrderIndex: roi, Side: side}
		if verr := validate.Struct(p); verr != nil {
			return 0, CallResult{}, cloberrors.Wrap(cloberrors.KindTruncatedPayload, verr, "cancel payload failed validation")
		}

		t, terr := tick.NewTick(tickValue)
		if terr != nil {
			return orderIDLen + 1, CallResult{Selector: selector, ExitCode: uint8(cloberrors.KindPriceOutOfBand)}, nil
		}
		orderID := tick.OrderId{Tick: t, RestingOrderIndex: tick.RestingOrderIndex(roi)}
		cerr := eng.CancelOrder(side, orderID, caller)
		return finishCall(selector, orderIDLen+1, cerr)

	case SelectorReduce:
		const n = orderIDLen + 1 + u64Len
		if len(payload) < n {
			return 0, CallResult{}, cloberrors.New(cloberrors.KindTruncatedPayload, "reduce payload truncated")
		}
		tickValue := binary.BigEndian.Uint32(payload[0:4])
		roi := payload[4]
		side := tick.Side(payload[5])
		lots := binary.LittleEndian.Uint64(payload[6:14])

		p := reducePayload{Tick: tickValue, RestingOrderIndex: roi, Side: side, Lots: lots}
		if verr := validate.Struct(p); verr != nil {
			return 0, CallResult{}, cloberrors.Wrap(cloberrors.KindTruncatedPayload, verr, "reduce payload failed validation")
		}

		t, terr := tick.NewTick(tickValue)
		if terr != nil {
			return n, CallResult{Selector: selector, ExitCode: uint8(cloberrors.KindPriceOutOfBand)}, nil
		}
		orderID := tick.OrderId{Tick: t, RestingOrderIndex: tick.RestingOrderIndex(roi)}
		_, cerr := eng.ReduceOrder(side, orderID, caller, lots)
		return finishCall(selector, n, cerr)

	case SelectorGetTraderState:
		const n = addressLen * 2
		if len(payload) < n {
			return 0, CallResult{}, cloberrors.New(cloberrors.KindTruncatedPayload, "get_trader_state payload truncated")
		}
		p := getTraderStatePayload{
			Trader: common.BytesToAddress(payload[0:20]),
			Token:  common.BytesToAddress(payload[20:40]),
		}
		if verr := validate.Struct(p); verr != nil {
			return 0, CallResult{}, cloberrors.Wrap(cloberrors.KindTruncatedPayload, verr, "get_trader_state payload failed validation")
		}
		ts := eng.TraderBalance(p.Trader, p.Token)
		encoded := ts.Encode()
		return n, CallResult{Selector: selector, ExitCode: 0, Output: encoded[:]}, nil

	case SelectorCollectFees:
		amount := eng.CollectFees()
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, amount)
		return 0, CallResult{Selector: selector, ExitCode: 0, Output: out}, nil

	default:
		return 0, CallResult{}, cloberrors.New(cloberrors.KindInvalidSelector, "unknown selector")
	}
}
