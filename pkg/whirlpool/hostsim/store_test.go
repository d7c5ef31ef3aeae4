package hostsim

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"whirlsim/pkg/whirlpool/accountcodec"
	"whirlsim/pkg/whirlpool/position"
	"whirlsim/pkg/whirlpool/poolstate"
	"whirlsim/pkg/whirlpool/tickarray"
)

func TestStorePoolCRUD(t *testing.T) {
	s := NewStore(nil)
	key := PoolKey(solana.PublicKey{1}, solana.PublicKey{2}, solana.PublicKey{3}, 64)

	if _, ok := s.GetPool(key); ok {
		t.Fatal("expected no pool before SetPool")
	}

	s.SetPool(key, 1, accountcodec.DecodedPool{Pool: poolstate.Pool{TickSpacing: 64}})
	entry, ok := s.GetPool(key)
	if !ok {
		t.Fatal("expected pool after SetPool")
	}
	if entry.Pool.Pool.TickSpacing != 64 {
		t.Fatalf("TickSpacing = %d, want 64", entry.Pool.Pool.TickSpacing)
	}

	pools, positions, arrays := s.Size()
	if pools != 1 || positions != 0 || arrays != 0 {
		t.Fatalf("Size() = %d,%d,%d, want 1,0,0", pools, positions, arrays)
	}

	s.RemovePool(key)
	if _, ok := s.GetPool(key); ok {
		t.Fatal("expected pool removed")
	}
}

func TestStoreStalePoolKeys(t *testing.T) {
	s := NewStore(nil)
	key := PoolKey(solana.PublicKey{1}, solana.PublicKey{2}, solana.PublicKey{3}, 64)
	s.SetPool(key, 0, accountcodec.DecodedPool{})

	if stale := s.StalePoolKeys(time.Hour); len(stale) != 0 {
		t.Fatalf("expected no stale pools yet, got %d", len(stale))
	}

	s.mu.Lock()
	s.pools[key].LastUpdate = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	stale := s.StalePoolKeys(time.Hour)
	if len(stale) != 1 || stale[0] != key {
		t.Fatalf("StalePoolKeys = %v, want [%v]", stale, key)
	}
}

func TestStorePositionAndTickArrayCRUD(t *testing.T) {
	s := NewStore(nil)
	owner := solana.PublicKey{9}
	posKey := PositionKey(solana.PublicKey{10})

	s.SetPosition(posKey, owner, position.Position{TickLowerIndex: -64, TickUpperIndex: 64})
	entry, ok := s.GetPosition(posKey)
	if !ok || entry.Owner != owner {
		t.Fatalf("GetPosition = %+v, %v", entry, ok)
	}

	s.RemovePosition(posKey)
	if _, ok := s.GetPosition(posKey); ok {
		t.Fatal("expected position removed")
	}

	whirlpool := solana.PublicKey{11}
	arrKey := TickArrayKey(whirlpool, 0)
	arr := tickarray.NewFixed(whirlpool, 0)
	s.SetTickArray(arrKey, arr)

	arrEntry, ok := s.GetTickArray(arrKey)
	if !ok || arrEntry.Store.Whirlpool() != whirlpool {
		t.Fatalf("GetTickArray = %+v, %v", arrEntry, ok)
	}
}

func TestDerivedKeysAreStable(t *testing.T) {
	a := PoolKey(solana.PublicKey{1}, solana.PublicKey{2}, solana.PublicKey{3}, 64)
	b := PoolKey(solana.PublicKey{1}, solana.PublicKey{2}, solana.PublicKey{3}, 64)
	if a != b {
		t.Fatal("PoolKey must be deterministic for identical inputs")
	}
	c := PoolKey(solana.PublicKey{1}, solana.PublicKey{2}, solana.PublicKey{3}, 128)
	if a == c {
		t.Fatal("PoolKey must differ when tick spacing differs")
	}
}
