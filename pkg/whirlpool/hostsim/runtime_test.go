package hostsim

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool"
	"whirlsim/pkg/whirlpool/tickarray"
	"whirlsim/pkg/whirlpool/tickmath"
)

// TestRuntimeFullLifecycle exercises initialize_pool through close_position
// end to end against the in-memory store: create a pool and the two tick
// arrays either side of tick 0, open a position spanning tick 0, deposit
// liquidity, swap against it (staying inside the position's range), withdraw
// everything, then close the position.
func TestRuntimeFullLifecycle(t *testing.T) {
	store := NewStore(nil)
	rt := NewRuntime(store)

	configKey := solana.PublicKey{1}
	mintA := solana.PublicKey{2}
	mintB := solana.PublicKey{3}

	poolKey, err := rt.CreatePool(whirlpool.InitializePoolParams{
		TickSpacing:      64,
		InitialSqrtPrice: uint128.From64(1).Lsh(64), // tick 0
		FeeRate:          3_000,
		ProtocolFeeRate:  2_000,
		TokenMintA:       mintA,
		TokenMintB:       mintB,
		TokenVaultA:      solana.PublicKey{4},
		TokenVaultB:      solana.PublicKey{5},
		WhirlpoolsConfig: configKey,
	})
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}

	arrayKey, err := rt.CreateTickArray(poolKey, 0, whirlpool.LayoutFixed)
	if err != nil {
		t.Fatalf("CreateTickArray: %v", err)
	}
	lowerArrayKey, err := rt.CreateTickArray(poolKey, -88*64, whirlpool.LayoutFixed)
	if err != nil {
		t.Fatalf("CreateTickArray (lower): %v", err)
	}

	positionMint := solana.PublicKey{6}
	owner := solana.PublicKey{7}
	positionKey, err := rt.OpenPosition(poolKey, owner, positionMint, -128, 128)
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	depositResult, err := rt.ModifyLiquidity(poolKey, positionKey, lowerArrayKey, arrayKey,
		tickarray.FromI64(1_000_000), 0, 0, 1)
	if err != nil {
		t.Fatalf("ModifyLiquidity (deposit): %v", err)
	}
	if depositResult.DeltaA == 0 && depositResult.DeltaB == 0 {
		t.Fatal("expected a non-zero token deposit")
	}

	poolEntry, ok := store.GetPool(poolKey)
	if !ok {
		t.Fatal("expected pool to be stored")
	}
	if poolEntry.Pool.Pool.Liquidity.IsZero() {
		t.Fatal("expected pool liquidity to reflect the deposit")
	}

	swapResult, err := rt.Swap(poolKey, SwapInput{
		TickArrayKeys:          []AccountKey{arrayKey},
		AmountSpecified:        5_000,
		OtherAmountThreshold:   1,
		SqrtPriceLimit:         tickmath.MaxSqrtPrice(),
		AmountSpecifiedIsInput: true,
		AToB:                   false,
		Now:                    2,
	})
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if swapResult.AmountIn == 0 || swapResult.AmountOut == 0 {
		t.Fatalf("expected non-zero swap amounts, got %+v", swapResult)
	}

	withdrawResult, err := rt.ModifyLiquidity(poolKey, positionKey, lowerArrayKey, arrayKey,
		tickarray.FromI64(1_000_000).Negate(), 0, 0, 3)
	if err != nil {
		t.Fatalf("ModifyLiquidity (withdraw): %v", err)
	}
	if withdrawResult.DeltaA == 0 && withdrawResult.DeltaB == 0 {
		t.Fatal("expected a non-zero token withdrawal")
	}

	feeResult, err := rt.CollectFees(positionKey)
	if err != nil {
		t.Fatalf("CollectFees: %v", err)
	}
	if feeResult.FeeA == 0 && feeResult.FeeB == 0 {
		t.Fatal("expected accrued fees from the swap")
	}

	if err := rt.ClosePosition(positionKey); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if _, ok := store.GetPosition(positionKey); ok {
		t.Fatal("expected position account removed after ClosePosition")
	}
}

// TestRuntimeUpdateFeesAndRewardsSyncsWithoutWithdrawing opens a position,
// deposits liquidity, trades against it, then syncs and collects fees while
// the position still holds its full liquidity -- the update_fees_and_rewards
// path a depositor takes to harvest fees without closing out their range.
func TestRuntimeUpdateFeesAndRewardsSyncsWithoutWithdrawing(t *testing.T) {
	store := NewStore(nil)
	rt := NewRuntime(store)

	configKey := solana.PublicKey{11}
	mintA := solana.PublicKey{12}
	mintB := solana.PublicKey{13}

	poolKey, err := rt.CreatePool(whirlpool.InitializePoolParams{
		TickSpacing:      64,
		InitialSqrtPrice: uint128.From64(1).Lsh(64), // tick 0
		FeeRate:          3_000,
		ProtocolFeeRate:  0,
		TokenMintA:       mintA,
		TokenMintB:       mintB,
		TokenVaultA:      solana.PublicKey{14},
		TokenVaultB:      solana.PublicKey{15},
		WhirlpoolsConfig: configKey,
	})
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}

	arrayKey, err := rt.CreateTickArray(poolKey, 0, whirlpool.LayoutFixed)
	if err != nil {
		t.Fatalf("CreateTickArray: %v", err)
	}
	lowerArrayKey, err := rt.CreateTickArray(poolKey, -88*64, whirlpool.LayoutFixed)
	if err != nil {
		t.Fatalf("CreateTickArray (lower): %v", err)
	}

	positionKey, err := rt.OpenPosition(poolKey, solana.PublicKey{16}, solana.PublicKey{17}, -128, 128)
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	if _, err := rt.ModifyLiquidity(poolKey, positionKey, lowerArrayKey, arrayKey,
		tickarray.FromI64(1_000_000), 0, 0, 1); err != nil {
		t.Fatalf("ModifyLiquidity (deposit): %v", err)
	}

	if _, err := rt.Swap(poolKey, SwapInput{
		TickArrayKeys:          []AccountKey{arrayKey},
		AmountSpecified:        5_000,
		OtherAmountThreshold:   1,
		SqrtPriceLimit:         tickmath.MaxSqrtPrice(),
		AmountSpecifiedIsInput: true,
		AToB:                   false,
		Now:                    2,
	}); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	if err := rt.UpdateFeesAndRewards(poolKey, positionKey, lowerArrayKey, arrayKey, 3); err != nil {
		t.Fatalf("UpdateFeesAndRewards: %v", err)
	}

	posEntry, ok := store.GetPosition(positionKey)
	if !ok {
		t.Fatal("expected position to still be stored")
	}
	if posEntry.Position.Liquidity.IsZero() {
		t.Fatal("expected UpdateFeesAndRewards to leave liquidity untouched")
	}

	feeResult, err := rt.CollectFees(positionKey)
	if err != nil {
		t.Fatalf("CollectFees: %v", err)
	}
	if feeResult.FeeA == 0 && feeResult.FeeB == 0 {
		t.Fatal("expected the synced position to have collectible fees")
	}

	posEntry, _ = store.GetPosition(positionKey)
	if posEntry.Position.Liquidity.IsZero() {
		t.Fatal("expected CollectFees to leave liquidity untouched")
	}
}

func TestRuntimeModifyLiquidity_UnknownAccounts(t *testing.T) {
	store := NewStore(nil)
	rt := NewRuntime(store)

	_, err := rt.ModifyLiquidity(AccountKey{}, AccountKey{}, AccountKey{}, AccountKey{}, tickarray.FromI64(1), 0, 0, 1)
	if err == nil {
		t.Fatal("expected an error for unresolved accounts")
	}
}
