// Package engine implements L5: the market-facing operations (deposit,
// withdraw, place, cancel, reduce, match, fee collection) that compose the
// L4 book operator with MarketState and TraderState. This is the layer
// dispatch (L6) calls into; engine itself never touches calldata.
package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/goblinclob/engine/internal/clob/book"
	"github.com/goblinclob/engine/internal/clob/cloberrors"
	"github.com/goblinclob/engine/internal/clob/codec"
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
	"github.com/goblinclob/engine/pkg/metrics"
)

// Engine is single-market: baseToken/quoteToken fix which TraderState
// entries a side's lock/credit operations touch, rather than threading
// token ids through every calldata payload.
type Engine struct {
	storage     slot.Storage
	book        *book.Book
	quoteToken  common.Address
	baseToken   common.Address
	feeBpsDenom uint64
}

// New constructs an Engine over storage for a single (baseToken,
// quoteToken) market.
func New(storage slot.Storage, baseToken, quoteToken common.Address) *Engine {
	return &Engine{
		storage:     storage,
		book:        book.NewBook(storage),
		baseToken:   baseToken,
		quoteToken:  quoteToken,
		feeBpsDenom: 10_000,
	}
}

func (e *Engine) loadMarket() codec.MarketState {
	raw := e.storage.SLoad(slot.MarketKey())
	if raw == (slot.Value{}) {
		// A market slot that was never written has no orders on either
		// side; decoding it would read both best ticks as tick 0.
		return codec.MarketState{}
	}
	return codec.DecodeMarketState(raw)
}

func (e *Engine) storeMarket(m codec.MarketState) {
	m.Nonce++
	slot.WriteIfChanged(e.storage, slot.MarketKey(), m.Encode())
}

func (e *Engine) loadTrader(trader, token common.Address) codec.TraderState {
	return codec.DecodeTraderState(e.storage.SLoad(slot.TraderKey(trader, token)))
}

func (e *Engine) storeTrader(trader, token common.Address, ts codec.TraderState) {
	slot.WriteIfChanged(e.storage, slot.TraderKey(trader, token), ts.Encode())
}

// Deposit credits trader's free balance of token with lots. Token transfer
// itself is an external collaborator's concern (spec section 1's
// out-of-scope list); the engine only updates the ledger entry.
func (e *Engine) Deposit(trader, token common.Address, lots uint64) {
	ts := e.loadTrader(trader, token)
	ts.CreditFree(lots)
	e.storeTrader(trader, token, ts)
}

// Withdraw debits trader's free balance of token by lots, failing with
// InsufficientBalance if the free balance cannot cover it.
func (e *Engine) Withdraw(trader, token common.Address, lots uint64) error {
	ts := e.loadTrader(trader, token)
	if ts.FreeLots < lots {
		return cloberrors.New(cloberrors.KindInsufficientBalance, "withdrawal exceeds free balance")
	}
	ts.FreeLots -= lots
	e.storeTrader(trader, token, ts)
	return nil
}

func (e *Engine) lockToken(side tick.Side) common.Address {
	// A resting bid locks quote lots (it pays quote to buy base); a
	// resting ask locks base lots (it gives up base to sell).
	if side == tick.Bid {
		return e.quoteToken
	}
	return e.baseToken
}

// quoteLotsForOrder computes the quote-lot cost of a resting bid of
// numBaseLots at tick t, used to size the locked balance. One tick is one
// quote lot per base lot, matching the reference's lot-for-lot pricing; a
// richer quote-lot-per-tick-increment model is out of scope here since the
// specification leaves tick-to-price scaling to the host configuration.
func quoteLotsForOrder(t tick.Tick, numBaseLots uint64) uint64 {
	return uint64(t) * numBaseLots
}

// PlaceOrder places a resting order on side at tick t, locking the
// relevant balance from trader's TraderState. postOnly orders fail with
// WouldCross rather than crossing the book.
func (e *Engine) PlaceOrder(side tick.Side, t tick.Tick, trader common.Address, numBaseLots uint64, postOnly bool, trackBlock bool, expiry uint32) (tick.OrderId, error) {
	market := e.loadMarket()

	lockToken := e.lockToken(side)
	var lockAmount uint64
	if side == tick.Bid {
		lockAmount = quoteLotsForOrder(t, numBaseLots)
	} else {
		lockAmount = numBaseLots
	}

	ts := e.loadTrader(trader, lockToken)
	if ts.FreeLots < lockAmount {
		return tick.OrderId{}, cloberrors.New(cloberrors.KindInsufficientBalance, "insufficient free balance to lock for resting order")
	}

	orderID, err := e.book.Place(side, t, trader, numBaseLots, postOnly, trackBlock, expiry, &market)
	if err != nil {
		return tick.OrderId{}, err
	}

	ts.LockLots(lockAmount)
	e.storeTrader(trader, lockToken, ts)
	e.storeMarket(market)
	metrics.OrdersPlaced.WithLabelValues(side.String()).Inc()
	return orderID, nil
}

// CancelOrder cancels trader's resting order outright, unlocking its
// reserved balance.
func (e *Engine) CancelOrder(side tick.Side, orderID tick.OrderId, trader common.Address) error {
	market := e.loadMarket()

	orderKey := slot.RestingOrderKey(orderID.Tick.Uint32(), uint8(orderID.RestingOrderIndex))
	ro := codec.DecodeRestingOrder(e.storage.SLoad(orderKey))
	if ro.DoesNotExist() {
		return cloberrors.New(cloberrors.KindInvariantFault, "cancel on a resting order slot that does not exist")
	}

	lockToken := e.lockToken(side)
	var lockAmount uint64
	if side == tick.Bid {
		lockAmount = quoteLotsForOrder(orderID.Tick, ro.NumBaseLots)
	} else {
		lockAmount = ro.NumBaseLots
	}

	if err := e.book.Cancel(side, orderID, trader, &market); err != nil {
		return err
	}

	ts := e.loadTrader(trader, lockToken)
	ts.UnlockLots(lockAmount)
	e.storeTrader(trader, lockToken, ts)
	e.storeMarket(market)
	metrics.OrdersCancelled.WithLabelValues(side.String()).Inc()
	return nil
}

// ReduceOrder lowers trader's resting order by lotsToRemove, unlocking the
// corresponding balance. Grounded on the reference's reduce_order_inner,
// which the distilled specification's Cancel alone does not cover.
func (e *Engine) ReduceOrder(side tick.Side, orderID tick.OrderId, trader common.Address, lotsToRemove uint64) (uint64, error) {
	market := e.loadMarket()

	lockToken := e.lockToken(side)
	orderKey := slot.RestingOrderKey(orderID.Tick.Uint32(), uint8(orderID.RestingOrderIndex))
	sizeBefore := codec.DecodeRestingOrder(e.storage.SLoad(orderKey)).NumBaseLots
	removed, err := e.book.Reduce(side, orderID, trader, lotsToRemove, &market)
	if err != nil {
		return 0, err
	}

	var unlockAmount uint64
	if side == tick.Bid {
		unlockAmount = quoteLotsForOrder(orderID.Tick, removed)
	} else {
		unlockAmount = removed
	}

	ts := e.loadTrader(trader, lockToken)
	ts.UnlockLots(unlockAmount)
	e.storeTrader(trader, lockToken, ts)
	e.storeMarket(market)
	if removed == sizeBefore {
		// The reduction consumed the whole order, same as Cancel.
		metrics.OrdersCancelled.WithLabelValues(side.String()).Inc()
	}
	return removed, nil
}

// MatchResult is the taker-facing outcome of a match, with fees already
// deducted from the quote-lot proceeds.
type MatchResult struct {
	FilledBaseLots  uint64
	QuoteLotsTraded uint64
	FeeQuoteLots    uint64
}

// feeRoundUp computes ceil(numerator * feeBps / denom), the only division
// in the engine that rounds up rather than toward zero (spec section 6).
func feeRoundUp(numerator uint64, feeBps uint16, denom uint64) uint64 {
	num := numerator * uint64(feeBps)
	return (num + denom - 1) / denom
}

// MatchOrder crosses a taker order on takerSide against the resting book,
// applies the maker-side proceeds to TraderState, and accrues the taker's
// fee into MarketState.UnclaimedQuoteLotFees. The taker pays out of its
// free balance, never locked: a taker never staged a resting order, so it
// never locked anything to debit (mirrors the reference's
// use_free_quote_lots/use_free_base_lots).
func (e *Engine) MatchOrder(takerSide tick.Side, takerTrader common.Address, maxBaseLots uint64, limitTick *tick.Tick) (MatchResult, error) {
	market := e.loadMarket()

	takerToken := e.quoteToken
	if takerSide == tick.Ask {
		takerToken = e.baseToken
	}

	// A limit order can never fill worse than its own limit price, so the
	// worst-case cost is bounded before the book is ever touched: this
	// keeps an insufficient-balance failure from leaving book.MatchTaker's
	// already-committed resting-order removals stranded with no matching
	// balance movement. A limitTick of nil (an unbounded market order) has
	// no such bound; its sufficiency is only checked after matching, and a
	// failure there relies on the host transaction reverting all storage
	// writes made so far, the same as any other invariant discovered too
	// late to prevent (spec section 5's atomic-commit-per-transaction
	// model).
	if limitTick != nil {
		taker := e.loadTrader(takerTrader, takerToken)
		var worstCase uint64
		if takerSide == tick.Bid {
			cost := quoteLotsForOrder(*limitTick, maxBaseLots)
			worstCase = cost + feeRoundUp(cost, market.FeeBps, e.feeBpsDenom)
		} else {
			worstCase = maxBaseLots
		}
		if taker.FreeLots < worstCase {
			return MatchResult{}, cloberrors.New(cloberrors.KindInsufficientBalance, "taker free balance cannot cover the worst-case cost of this match")
		}
	}

	result, err := e.book.MatchTaker(takerSide, takerTrader, maxBaseLots, limitTick, &market)
	if err != nil {
		return MatchResult{}, err
	}

	var quoteTraded uint64
	restingSide := takerSide.Opposite()
	restingLockToken := e.lockToken(restingSide)

	for _, fill := range result.Fills {
		quoteTraded += quoteLotsForOrder(fill.Tick, fill.BaseLots)
	}
	fee := feeRoundUp(quoteTraded, market.FeeBps, e.feeBpsDenom)

	// Verify the taker can actually afford the trade before any TraderState
	// write happens, so an insufficient-balance failure here (only reachable
	// when limitTick was nil above) leaves every maker/taker ledger entry
	// untouched.
	taker := e.loadTrader(takerTrader, takerToken)
	if takerSide == tick.Bid {
		if taker.FreeLots < quoteTraded+fee {
			return MatchResult{}, cloberrors.New(cloberrors.KindInsufficientBalance, "taker free balance cannot cover matched cost")
		}
	} else {
		if taker.FreeLots < result.FilledBaseLots {
			return MatchResult{}, cloberrors.New(cloberrors.KindInsufficientBalance, "taker free balance cannot cover matched base lots")
		}
	}

	for _, fill := range result.Fills {
		quoteLots := quoteLotsForOrder(fill.Tick, fill.BaseLots)
		metrics.FillsExecuted.WithLabelValues(restingSide.String()).Inc()

		maker := e.loadTrader(fill.Trader, restingLockToken)
		if restingSide == tick.Bid {
			// Maker was a resting bid (locked quote), now receives base.
			maker.DebitLocked(quoteLots)
			e.storeTrader(fill.Trader, restingLockToken, maker)
			baseCredit := e.loadTrader(fill.Trader, e.baseToken)
			baseCredit.CreditFree(fill.BaseLots)
			e.storeTrader(fill.Trader, e.baseToken, baseCredit)
		} else {
			// Maker was a resting ask (locked base), now receives quote.
			maker.DebitLocked(fill.BaseLots)
			e.storeTrader(fill.Trader, restingLockToken, maker)
			quoteCredit := e.loadTrader(fill.Trader, e.quoteToken)
			quoteCredit.CreditFree(quoteLots)
			e.storeTrader(fill.Trader, e.quoteToken, quoteCredit)
		}
	}

	market.UnclaimedQuoteLotFees += fee

	if takerSide == tick.Bid {
		// Buyer: pay quote out of free balance, receive base free.
		taker.DebitFree(quoteTraded + fee)
		e.storeTrader(takerTrader, e.quoteToken, taker)
		baseCredit := e.loadTrader(takerTrader, e.baseToken)
		baseCredit.CreditFree(result.FilledBaseLots)
		e.storeTrader(takerTrader, e.baseToken, baseCredit)
	} else {
		// Seller: pay base out of free balance, receive net quote free.
		taker.DebitFree(result.FilledBaseLots)
		e.storeTrader(takerTrader, e.baseToken, taker)
		netQuote := quoteTraded - fee
		quoteCredit := e.loadTrader(takerTrader, e.quoteToken)
		quoteCredit.CreditFree(netQuote)
		e.storeTrader(takerTrader, e.quoteToken, quoteCredit)
	}

	e.storeMarket(market)

	return MatchResult{
		FilledBaseLots:  result.FilledBaseLots,
		QuoteLotsTraded: quoteTraded,
		FeeQuoteLots:    fee,
	}, nil
}

// CollectFees moves UnclaimedQuoteLotFees into CollectedQuoteLotFees,
// returning the amount moved. Grounded on the reference's collected/
// unclaimed fee split, a supplemented feature beyond the distilled
// specification's plain "collected fees" field.
func (e *Engine) CollectFees() uint64 {
	market := e.loadMarket()
	amount := market.UnclaimedQuoteLotFees
	market.UnclaimedQuoteLotFees = 0
	market.CollectedQuoteLotFees += amount
	e.storeMarket(market)
	return amount
}

// TraderBalance reads back a trader's TraderState for token, used by the
// read-only get_trader_state dispatch selector.
func (e *Engine) TraderBalance(trader, token common.Address) codec.TraderState {
	return e.loadTrader(trader, token)
}

// MarketSnapshot reads back the current MarketState without modifying it;
// no dispatch selector calls it.
func (e *Engine) MarketSnapshot() codec.MarketState {
	return e.loadMarket()
}
