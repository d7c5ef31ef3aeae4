package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"golang.org/x/time/rate"
	"lukechampine.com/uint128"

	"whirlsim/pkg/config"
	"whirlsim/pkg/whirlpool"
	"whirlsim/pkg/whirlpool/hostsim"
	"whirlsim/pkg/whirlpool/tickarray"
	"whirlsim/pkg/whirlpool/tickmath"
)

// Result is the JSON shape printed on success: the pool's post-swap state
// plus the amounts each step moved, mirroring cmd/quote's QuoteResponse.
type Result struct {
	PoolAddress      string `json:"poolAddress"`
	PositionAddress  string `json:"positionAddress"`
	TickCurrentIndex int32  `json:"tickCurrentIndex"`
	SqrtPrice        string `json:"sqrtPrice"`
	Liquidity        string `json:"liquidity"`
	DepositA         uint64 `json:"depositA"`
	DepositB         uint64 `json:"depositB"`
	SwapAmountIn     uint64 `json:"swapAmountIn"`
	SwapAmountOut    uint64 `json:"swapAmountOut"`
	WithdrawA        uint64 `json:"withdrawA"`
	WithdrawB        uint64 `json:"withdrawB"`
	FeeA             uint64 `json:"feeA"`
	FeeB             uint64 `json:"feeB"`
}

type runError struct {
	Error string `json:"error"`
}

var (
	seed            = flag.String("seed", "whirlsim-demo", "seed string used to derive the pool's synthetic config/mint addresses")
	tickSpacing     = flag.Uint("tick-spacing", 64, "pool tick spacing")
	feeRate         = flag.Uint("fee-rate", 3000, "pool static fee rate, parts per million")
	protocolFeeRate = flag.Uint("protocol-fee-rate", 2000, "pool protocol fee rate, parts per 10000")
	liquidityDelta  = flag.Uint64("liquidity", 1_000_000, "liquidity to deposit then withdraw")
	swapAmount      = flag.Uint64("amount", 10_000, "swap input amount")
	aToB            = flag.Bool("a-to-b", false, "swap direction: true trades token A for token B")
	rateLimit       = flag.Int("ratelimit", 20, "simulated host operations per second")
	jsonOutput      = flag.Bool("json", true, "output as JSON (default: true)")
)

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}
	flag.Parse()

	if *tickSpacing == 0 || *tickSpacing > 1<<16-1 {
		outputError("tick-spacing must fit in a uint16")
		os.Exit(1)
	}

	whirlpoolsConfig := solana.PublicKeyFromBytes(seeded(*seed, "config"))
	mintA := solana.PublicKeyFromBytes(seeded(*seed, "mint-a"))
	mintB := solana.PublicKeyFromBytes(seeded(*seed, "mint-b"))
	vaultA := solana.PublicKeyFromBytes(seeded(*seed, "vault-a"))
	vaultB := solana.PublicKeyFromBytes(seeded(*seed, "vault-b"))
	positionMint := solana.PublicKeyFromBytes(seeded(*seed, "position"))
	owner := solana.PublicKeyFromBytes(seeded(*seed, "owner"))

	store := hostsim.NewStore(nil)
	rt := hostsim.NewRuntime(store)

	limiter := rate.NewLimiter(rate.Limit(*rateLimit), *rateLimit)
	ctx := context.Background()

	wait := func() {
		if err := limiter.Wait(ctx); err != nil {
			outputError(fmt.Sprintf("rate limiter: %v", err))
			os.Exit(1)
		}
	}

	wait()
	poolKey, err := rt.CreatePool(whirlpool.InitializePoolParams{
		TickSpacing:      uint16(*tickSpacing),
		InitialSqrtPrice: uint128.From64(1).Lsh(tickmath.U64Resolution),
		FeeRate:          uint16(*feeRate),
		ProtocolFeeRate:  uint16(*protocolFeeRate),
		TokenMintA:       mintA,
		TokenMintB:       mintB,
		TokenVaultA:      vaultA,
		TokenVaultB:      vaultB,
		WhirlpoolsConfig: whirlpoolsConfig,
	})
	if err != nil {
		outputError(fmt.Sprintf("initialize_pool: %v", err))
		os.Exit(1)
	}

	wait()
	arrayKey, err := rt.CreateTickArray(poolKey, 0, whirlpool.LayoutFixed)
	if err != nil {
		outputError(fmt.Sprintf("initialize_tick_array: %v", err))
		os.Exit(1)
	}

	tickBound := int32(*tickSpacing) * 2
	wait()
	positionKey, err := rt.OpenPosition(poolKey, owner, positionMint, -tickBound, tickBound)
	if err != nil {
		outputError(fmt.Sprintf("open_position: %v", err))
		os.Exit(1)
	}

	wait()
	depositResult, err := rt.ModifyLiquidity(poolKey, positionKey, arrayKey, arrayKey,
		tickarray.FromI64(int64(*liquidityDelta)), 0, 0, 1)
	if err != nil {
		outputError(fmt.Sprintf("modify_liquidity (deposit): %v", err))
		os.Exit(1)
	}

	wait()
	sqrtPriceLimit := tickmath.MaxSqrtPrice()
	if *aToB {
		sqrtPriceLimit = tickmath.MinSqrtPrice()
	}
	swapResult, err := rt.Swap(poolKey, hostsim.SwapInput{
		TickArrayKeys:          []hostsim.AccountKey{arrayKey},
		AmountSpecified:        *swapAmount,
		OtherAmountThreshold:   1,
		SqrtPriceLimit:         sqrtPriceLimit,
		AmountSpecifiedIsInput: true,
		AToB:                   *aToB,
		Now:                    2,
	})
	if err != nil {
		outputError(fmt.Sprintf("swap: %v", err))
		os.Exit(1)
	}

	wait()
	withdrawResult, err := rt.ModifyLiquidity(poolKey, positionKey, arrayKey, arrayKey,
		tickarray.FromI64(int64(*liquidityDelta)).Negate(), 0, 0, 3)
	if err != nil {
		outputError(fmt.Sprintf("modify_liquidity (withdraw): %v", err))
		os.Exit(1)
	}

	wait()
	feeResult, err := rt.CollectFees(positionKey)
	if err != nil {
		outputError(fmt.Sprintf("collect_fees: %v", err))
		os.Exit(1)
	}

	poolEntry, _ := store.GetPool(poolKey)
	result := Result{
		PoolAddress:      base58.Encode(poolKey[:]),
		PositionAddress:  base58.Encode(positionKey[:]),
		TickCurrentIndex: poolEntry.Pool.Pool.TickCurrentIndex,
		SqrtPrice:        poolEntry.Pool.Pool.SqrtPrice.String(),
		Liquidity:        poolEntry.Pool.Pool.Liquidity.String(),
		DepositA:         depositResult.DeltaA,
		DepositB:         depositResult.DeltaB,
		SwapAmountIn:     swapResult.AmountIn,
		SwapAmountOut:    swapResult.AmountOut,
		WithdrawA:        withdrawResult.DeltaA,
		WithdrawB:        withdrawResult.DeltaB,
		FeeA:             feeResult.FeeA,
		FeeB:             feeResult.FeeB,
	}

	if *jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			outputError(fmt.Sprintf("failed to marshal JSON: %v", err))
			os.Exit(1)
		}
		fmt.Println(string(data))
	} else {
		fmt.Printf("pool %s: tick=%d sqrtPrice=%s liquidity=%s\n",
			result.PoolAddress, result.TickCurrentIndex, result.SqrtPrice, result.Liquidity)
		fmt.Printf("deposit: a=%d b=%d  swap: in=%d out=%d  withdraw: a=%d b=%d  fees: a=%d b=%d\n",
			result.DepositA, result.DepositB, result.SwapAmountIn, result.SwapAmountOut,
			result.WithdrawA, result.WithdrawB, result.FeeA, result.FeeB)
	}
}

// seeded derives 32 deterministic bytes for a synthetic account identity
// from a human-chosen seed string and a role label, printed back to the
// caller base58-encoded the way a real account address would be.
func seeded(seed, role string) []byte {
	h := sha256.Sum256([]byte(seed + ":" + role))
	return h[:]
}

func outputError(msg string) {
	if *jsonOutput {
		data, _ := json.MarshalIndent(runError{Error: msg}, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		log.Println("Error:", msg)
	}
}
