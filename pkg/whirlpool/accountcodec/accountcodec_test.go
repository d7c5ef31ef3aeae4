package accountcodec

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool/poolstate"
	"whirlsim/pkg/whirlpool/position"
	"whirlsim/pkg/whirlpool/tickarray"
)

func u128(v uint64) uint128.Uint128 { return uint128.From64(v) }

var pubkeySeq byte

func testPubkey() solana.PublicKey {
	pubkeySeq++
	b := bytes.Repeat([]byte{pubkeySeq}, 32)
	return solana.PublicKeyFromBytes(b)
}

func samplePool() DecodedPool {
	var p poolstate.Pool
	p.TickSpacing = 64
	p.FeeRate = 3000
	p.ProtocolFeeRate = 300
	p.Liquidity = u128(1_000_000)
	p.SqrtPrice = u128(1).Lsh(64)
	p.TickCurrentIndex = -128
	p.ProtocolFeeOwedA = 5
	p.ProtocolFeeOwedB = 6
	p.FeeGrowthGlobalA = u128(7)
	p.FeeGrowthGlobalB = u128(8)
	p.RewardLastUpdatedTimestamp = 1_700_000_000
	for i := range p.RewardInfos {
		p.RewardInfos[i] = poolstate.RewardInfo{
			Mint:                  testPubkey(),
			Vault:                 testPubkey(),
			Authority:             testPubkey(),
			EmissionsPerSecondX64: u128(uint64(i + 1)),
			GrowthGlobalX64:       u128(uint64(i * 10)),
		}
	}
	return DecodedPool{
		Pool:             p,
		WhirlpoolsConfig: testPubkey(),
		TokenMintA:       testPubkey(),
		TokenMintB:       testPubkey(),
		TokenVaultA:      testPubkey(),
		TokenVaultB:      testPubkey(),
	}
}

func TestPoolRoundTrip(t *testing.T) {
	want := samplePool()
	data, err := EncodePool(want)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != poolAccountLen {
		t.Fatalf("encoded pool length = %d, want %d", len(data), poolAccountLen)
	}
	got, err := DecodePool(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Pool != want.Pool {
		t.Errorf("pool state mismatch after round trip:\n got %+v\nwant %+v", got.Pool, want.Pool)
	}
	if got.WhirlpoolsConfig != want.WhirlpoolsConfig || got.TokenMintA != want.TokenMintA || got.TokenVaultB != want.TokenVaultB {
		t.Errorf("identity fields mismatch after round trip")
	}
}

func TestPoolRoundTrip_AdaptiveFeeFlag(t *testing.T) {
	want := samplePool()
	want.Flags = PoolFlagAdaptiveFee
	data, err := EncodePool(want)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != poolAccountLen+1 {
		t.Fatalf("encoded pool with flags length = %d, want %d", len(data), poolAccountLen+1)
	}
	got, err := DecodePool(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Flags != PoolFlagAdaptiveFee {
		t.Errorf("Flags = %#x, want %#x", got.Flags, PoolFlagAdaptiveFee)
	}
}

func TestDecodePool_TooShort(t *testing.T) {
	if _, err := DecodePool(make([]byte, poolAccountLen-1)); err == nil {
		t.Fatal("expected error decoding a truncated pool account")
	}
}

func TestFixedTickArrayRoundTrip(t *testing.T) {
	whirlpool := testPubkey()
	const tickSpacing = 64
	startTick := int32(64 * 88 * 2)

	arr := tickarray.NewFixed(whirlpool, startTick)
	if err := arr.UpdateTick(startTick+64*3, tickSpacing, tickarray.TickUpdate{
		Initialized:    true,
		LiquidityNet:   tickarray.FromI64(500),
		LiquidityGross: u128(500),
	}); err != nil {
		t.Fatal(err)
	}

	data, err := EncodeFixedTickArray(arr, tickSpacing)
	if err != nil {
		t.Fatal(err)
	}

	got, err := DecodeFixedTickArray(whirlpool, tickSpacing, data)
	if err != nil {
		t.Fatal(err)
	}
	tick, err := got.GetTick(startTick+64*3, tickSpacing)
	if err != nil {
		t.Fatal(err)
	}
	if !tick.Initialized || tick.LiquidityGross != u128(500) {
		t.Errorf("decoded tick mismatch: %+v", tick)
	}
	other, err := got.GetTick(startTick+64*4, tickSpacing)
	if err != nil {
		t.Fatal(err)
	}
	if other.Initialized {
		t.Errorf("unexpected tick initialized at unrelated offset")
	}
}

func TestPositionRoundTrip(t *testing.T) {
	owner := testPubkey()
	want := position.Position{
		TickLowerIndex:       -128,
		TickUpperIndex:       128,
		Liquidity:            u128(42_000),
		FeeGrowthCheckpointA: u128(1),
		FeeOwedA:             2,
		FeeGrowthCheckpointB: u128(3),
		FeeOwedB:             4,
	}
	for i := range want.RewardInfos {
		want.RewardInfos[i] = position.RewardInfo{GrowthInsideCheckpoint: u128(uint64(i)), AmountOwed: uint64(i * 2)}
	}

	data, err := EncodePosition(want, owner)
	if err != nil {
		t.Fatal(err)
	}
	got, gotOwner, err := DecodePosition(data)
	if err != nil {
		t.Fatal(err)
	}
	if gotOwner != owner {
		t.Errorf("owner mismatch after round trip")
	}
	if got != want {
		t.Errorf("position mismatch after round trip:\n got %+v\nwant %+v", got, want)
	}
}

func TestEncodePool_Deterministic(t *testing.T) {
	p := samplePool()
	a, err := EncodePool(p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodePool(p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("EncodePool is not deterministic across identical inputs")
	}
}
