package hostsim

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool"
	"whirlsim/pkg/whirlpool/accountcodec"
	"whirlsim/pkg/whirlpool/sequencer"
	"whirlsim/pkg/whirlpool/swap"
	"whirlsim/pkg/whirlpool/tickarray"
)

// errUnknownAccount reports a store lookup miss -- a harness-level failure
// distinct from the engine's own ABI error taxonomy, since no account the
// engine ever sees can be "not found": the host always resolves accounts
// before the call reaches it.
func errUnknownAccount(kind string) error {
	return fmt.Errorf("hostsim: unknown %s account", kind)
}

// Runtime binds an Engine to a Store: every method resolves its accounts out
// of the store, hands them to the Engine, and commits the result back under
// the same keys, the way a real host program resolves accounts from the
// instruction's account list before calling into the on-chain program.
type Runtime struct {
	engine *whirlpool.Engine
	store  *Store
}

// NewRuntime returns a Runtime over the given store.
func NewRuntime(store *Store) *Runtime {
	return &Runtime{engine: whirlpool.NewEngine(), store: store}
}

// CreatePool runs initialize_pool and stores the resulting pool account,
// returning its simulated address.
func (r *Runtime) CreatePool(p whirlpool.InitializePoolParams) (AccountKey, error) {
	pool, err := r.engine.InitializePool(p)
	if err != nil {
		return AccountKey{}, err
	}
	key := PoolKey(p.WhirlpoolsConfig, p.TokenMintA, p.TokenMintB, p.TickSpacing)
	r.store.SetPool(key, 0, accountcodec.DecodedPool{
		Pool:             pool,
		WhirlpoolsConfig: p.WhirlpoolsConfig,
		TokenMintA:       p.TokenMintA,
		TokenMintB:       p.TokenMintB,
		TokenVaultA:      p.TokenVaultA,
		TokenVaultB:      p.TokenVaultB,
	})
	return key, nil
}

// CreateTickArray runs initialize_tick_array against the pool identified by
// poolKey and stores the resulting account.
func (r *Runtime) CreateTickArray(poolKey AccountKey, startTickIndex int32, layout whirlpool.TickArrayLayout) (AccountKey, error) {
	entry, ok := r.store.GetPool(poolKey)
	if !ok {
		return AccountKey{}, errUnknownAccount("pool")
	}
	arr, err := r.engine.InitializeTickArray(poolKey, startTickIndex, entry.Pool.Pool.TickSpacing, layout)
	if err != nil {
		return AccountKey{}, err
	}
	key := TickArrayKey(poolKey, startTickIndex)
	r.store.SetTickArray(key, arr)
	return key, nil
}

// OpenPosition runs open_position against the pool identified by poolKey
// and stores the resulting account under positionMint's derived key.
func (r *Runtime) OpenPosition(poolKey AccountKey, owner, positionMint solana.PublicKey, tickLowerIndex, tickUpperIndex int32) (AccountKey, error) {
	entry, ok := r.store.GetPool(poolKey)
	if !ok {
		return AccountKey{}, errUnknownAccount("pool")
	}
	pos, err := r.engine.OpenPosition(tickLowerIndex, tickUpperIndex, entry.Pool.Pool.TickSpacing)
	if err != nil {
		return AccountKey{}, err
	}
	key := PositionKey(positionMint)
	r.store.SetPosition(key, owner, pos)
	return key, nil
}

// ModifyLiquidity runs modify_liquidity, resolving the pool, position, and
// the one or two tick-array accounts the position's bounds fall in out of
// the store, then commits all three back.
func (r *Runtime) ModifyLiquidity(poolKey, positionKey, tickArrayLowerKey, tickArrayUpperKey AccountKey, delta tickarray.I128, boundA, boundB uint64, now uint64) (whirlpool.ModifyLiquidityResult, error) {
	poolEntry, ok := r.store.GetPool(poolKey)
	if !ok {
		return whirlpool.ModifyLiquidityResult{}, errUnknownAccount("pool")
	}
	posEntry, ok := r.store.GetPosition(positionKey)
	if !ok {
		return whirlpool.ModifyLiquidityResult{}, errUnknownAccount("position")
	}
	lowerEntry, ok := r.store.GetTickArray(tickArrayLowerKey)
	if !ok {
		return whirlpool.ModifyLiquidityResult{}, errUnknownAccount("lower tick array")
	}
	var upperStore tickarray.Store
	if tickArrayUpperKey != (AccountKey{}) && tickArrayUpperKey != tickArrayLowerKey {
		upperEntry, ok := r.store.GetTickArray(tickArrayUpperKey)
		if !ok {
			return whirlpool.ModifyLiquidityResult{}, errUnknownAccount("upper tick array")
		}
		upperStore = upperEntry.Store
	}

	pool := poolEntry.Pool.Pool
	pos := posEntry.Position
	result, err := r.engine.ModifyLiquidity(whirlpool.ModifyLiquidityParams{
		WhirlpoolKey:   poolKey,
		Pool:           &pool,
		Position:       &pos,
		TickArrayLower: lowerEntry.Store,
		TickArrayUpper: upperStore,
		LiquidityDelta: delta,
		BoundA:         boundA,
		BoundB:         boundB,
		Timestamp:      now,
	})
	if err != nil {
		return whirlpool.ModifyLiquidityResult{}, err
	}

	poolEntry.Pool.Pool = pool
	r.store.SetPool(poolKey, poolEntry.LastSlot+1, poolEntry.Pool)
	r.store.SetPosition(positionKey, posEntry.Owner, pos)
	r.store.SetTickArray(tickArrayLowerKey, lowerEntry.Store)
	if upperStore != nil {
		r.store.SetTickArray(tickArrayUpperKey, upperStore)
	}
	return result, nil
}

// SwapInput bundles what Swap needs beyond what's already in the store.
type SwapInput struct {
	TickArrayKeys          []AccountKey
	AmountSpecified        uint64
	OtherAmountThreshold   uint64
	SqrtPriceLimit         uint128.Uint128
	AmountSpecifiedIsInput bool
	AToB                   bool
	Now                    uint64
}

// Swap runs swap against the pool identified by poolKey, building the
// sequencer.Sequence from the tick-array accounts named in in.TickArrayKeys,
// and commits the pool's new state back to the store.
func (r *Runtime) Swap(poolKey AccountKey, in SwapInput) (swap.Result, error) {
	poolEntry, ok := r.store.GetPool(poolKey)
	if !ok {
		return swap.Result{}, errUnknownAccount("pool")
	}

	var arrays []tickarray.Store
	for _, k := range in.TickArrayKeys {
		entry, ok := r.store.GetTickArray(k)
		if !ok {
			return swap.Result{}, errUnknownAccount("tick array")
		}
		arrays = append(arrays, entry.Store)
	}
	seq, err := sequencer.New(arrays...)
	if err != nil {
		return swap.Result{}, err
	}

	pool := poolEntry.Pool.Pool
	result, err := r.engine.Swap(whirlpool.SwapParams{
		WhirlpoolKey:           poolKey,
		Pool:                   &pool,
		Sequence:               seq,
		AmountSpecified:        in.AmountSpecified,
		OtherAmountThreshold:   in.OtherAmountThreshold,
		SqrtPriceLimit:         in.SqrtPriceLimit,
		AmountSpecifiedIsInput: in.AmountSpecifiedIsInput,
		AToB:                   in.AToB,
		Now:                    in.Now,
	})
	if err != nil {
		return swap.Result{}, err
	}

	poolEntry.Pool.Pool = pool
	r.store.SetPool(poolKey, poolEntry.LastSlot+1, poolEntry.Pool)
	for _, k := range in.TickArrayKeys {
		entry, _ := r.store.GetTickArray(k)
		r.store.SetTickArray(k, entry.Store)
	}
	return result, nil
}

// ClosePosition runs close_position against the stored position and, on
// success, removes its account from the store.
func (r *Runtime) ClosePosition(positionKey AccountKey) error {
	entry, ok := r.store.GetPosition(positionKey)
	if !ok {
		return errUnknownAccount("position")
	}
	if err := r.engine.ClosePosition(entry.Position); err != nil {
		return err
	}
	r.store.RemovePosition(positionKey)
	return nil
}

// UpdateFeesAndRewards runs update_fees_and_rewards against the stored pool
// and position, resolving the same one-or-two boundary tick arrays
// ModifyLiquidity does, and commits the synced pool and position back. Call
// this before CollectFees/CollectReward when a position's owed amounts need
// to reflect growth accrued since its last touch but the caller isn't also
// changing its liquidity.
func (r *Runtime) UpdateFeesAndRewards(poolKey, positionKey, tickArrayLowerKey, tickArrayUpperKey AccountKey, now uint64) error {
	poolEntry, ok := r.store.GetPool(poolKey)
	if !ok {
		return errUnknownAccount("pool")
	}
	posEntry, ok := r.store.GetPosition(positionKey)
	if !ok {
		return errUnknownAccount("position")
	}
	lowerEntry, ok := r.store.GetTickArray(tickArrayLowerKey)
	if !ok {
		return errUnknownAccount("lower tick array")
	}
	var upperStore tickarray.Store
	if tickArrayUpperKey != (AccountKey{}) && tickArrayUpperKey != tickArrayLowerKey {
		upperEntry, ok := r.store.GetTickArray(tickArrayUpperKey)
		if !ok {
			return errUnknownAccount("upper tick array")
		}
		upperStore = upperEntry.Store
	}

	pool := poolEntry.Pool.Pool
	pos := posEntry.Position
	if err := r.engine.UpdateFeesAndRewards(whirlpool.UpdateFeesAndRewardsParams{
		WhirlpoolKey:   poolKey,
		Pool:           &pool,
		Position:       &pos,
		TickArrayLower: lowerEntry.Store,
		TickArrayUpper: upperStore,
		Timestamp:      now,
	}); err != nil {
		return err
	}

	poolEntry.Pool.Pool = pool
	r.store.SetPool(poolKey, poolEntry.LastSlot+1, poolEntry.Pool)
	r.store.SetPosition(positionKey, posEntry.Owner, pos)
	return nil
}

// CollectFees runs collect_fees against the stored position and commits the
// drained position back.
func (r *Runtime) CollectFees(positionKey AccountKey) (whirlpool.CollectFeesResult, error) {
	entry, ok := r.store.GetPosition(positionKey)
	if !ok {
		return whirlpool.CollectFeesResult{}, errUnknownAccount("position")
	}
	pos := entry.Position
	result := r.engine.CollectFees(&pos)
	r.store.SetPosition(positionKey, entry.Owner, pos)
	return result, nil
}

// CollectReward runs collect_reward(index) against the stored position.
func (r *Runtime) CollectReward(positionKey AccountKey, index int, vaultBalance uint64) (uint64, error) {
	entry, ok := r.store.GetPosition(positionKey)
	if !ok {
		return 0, errUnknownAccount("position")
	}
	pos := entry.Position
	owed, err := r.engine.CollectReward(&pos, index, vaultBalance)
	if err != nil {
		return 0, err
	}
	r.store.SetPosition(positionKey, entry.Owner, pos)
	return owed, nil
}
