// Package hostsim provides an in-memory account store standing in for the
// real runtime that would otherwise own Whirlpool pool, tick-array, and
// position accounts: it keys decoded account state the way a host program
// would key it (by account address) and hands it to pkg/whirlpool's Engine
// on every call, committing the result back to the same slot. It is modeled
// on pkg/sol.RPCPool's "construct once, issue calls" shape and
// pkg/subscription's PoolCache (staleness-tracked, mutex-protected account
// cache).
package hostsim

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"whirlsim/pkg/whirlpool/accountcodec"
	"whirlsim/pkg/whirlpool/position"
	"whirlsim/pkg/whirlpool/tickarray"
)

// AccountKey is a simulated account address: a digest of the seeds that
// would derive the account's real PDA, wrapped as a PublicKey so it's both
// a valid map key and something tickarray.Store's Whirlpool() can return.
// It is not a cryptographic PDA (no bump search against the ed25519 curve),
// only a stable, collision-resistant stand-in good enough to key a local
// store.
type AccountKey = solana.PublicKey

func derive(seeds ...[]byte) AccountKey {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	return solana.PublicKeyFromBytes(h.Sum(nil))
}

// PoolKey derives the simulated address of a pool account from its
// identifying fields, mirroring how a real Whirlpool PDA is seeded by its
// config and token mints.
func PoolKey(config, mintA, mintB solana.PublicKey, tickSpacing uint16) AccountKey {
	return derive(config[:], mintA[:], mintB[:], []byte{byte(tickSpacing), byte(tickSpacing >> 8)})
}

// TickArrayKey derives the simulated address of a tick-array account.
func TickArrayKey(whirlpool solana.PublicKey, startTickIndex int32) AccountKey {
	return derive(whirlpool[:], []byte{
		byte(startTickIndex), byte(startTickIndex >> 8), byte(startTickIndex >> 16), byte(startTickIndex >> 24),
	})
}

// PositionKey derives the simulated address of a position account from its
// position mint, mirroring how a real position PDA is seeded.
func PositionKey(positionMint solana.PublicKey) AccountKey {
	return derive(positionMint[:])
}

// PoolEntry is a cached pool account plus the bookkeeping a staleness check
// needs.
type PoolEntry struct {
	Pool       accountcodec.DecodedPool
	LastUpdate time.Time
	LastSlot   uint64
}

// PositionEntry is a cached position account.
type PositionEntry struct {
	Position   position.Position
	Owner      solana.PublicKey
	LastUpdate time.Time
}

// TickArrayEntry is a cached tick-array account. Store is an interface
// (Fixed or Dynamic) so the cache doesn't care which layout a given array
// was initialized with.
type TickArrayEntry struct {
	Store      tickarray.Store
	LastUpdate time.Time
}

// Store is the account store a host-simulation run keeps open for its
// lifetime: one map per account kind, each independently mutex-protected
// like pool_cache.PoolCache.
type Store struct {
	mu         sync.RWMutex
	pools      map[AccountKey]*PoolEntry
	positions  map[AccountKey]*PositionEntry
	tickArrays map[AccountKey]*TickArrayEntry

	feed *Hub // optional; nil when no one is listening for change events
}

// NewStore returns an empty account store. feed may be nil.
func NewStore(feed *Hub) *Store {
	return &Store{
		pools:      make(map[AccountKey]*PoolEntry),
		positions:  make(map[AccountKey]*PositionEntry),
		tickArrays: make(map[AccountKey]*TickArrayEntry),
		feed:       feed,
	}
}

// SetPool adds or updates a pool account and, if a feed is attached,
// broadcasts the change.
func (s *Store) SetPool(key AccountKey, slot uint64, pool accountcodec.DecodedPool) {
	s.mu.Lock()
	s.pools[key] = &PoolEntry{Pool: pool, LastUpdate: time.Now(), LastSlot: slot}
	s.mu.Unlock()
	s.notify(AccountChangeEvent{Key: key.String(), Kind: AccountKindPool, Slot: slot})
}

// GetPool retrieves a pool account.
func (s *Store) GetPool(key AccountKey) (PoolEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.pools[key]
	if !ok {
		return PoolEntry{}, false
	}
	return *e, true
}

// RemovePool drops a pool account from the store.
func (s *Store) RemovePool(key AccountKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pools, key)
}

// AllPoolKeys returns every pool account key currently cached.
func (s *Store) AllPoolKeys() []AccountKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]AccountKey, 0, len(s.pools))
	for k := range s.pools {
		keys = append(keys, k)
	}
	return keys
}

// StalePoolKeys returns pool accounts that haven't changed in maxAge,
// mirroring PoolCache.GetStalePoolIDs.
func (s *Store) StalePoolKeys(maxAge time.Duration) []AccountKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var stale []AccountKey
	for k, e := range s.pools {
		if now.Sub(e.LastUpdate) > maxAge {
			stale = append(stale, k)
		}
	}
	return stale
}

// SetPosition adds or updates a position account.
func (s *Store) SetPosition(key AccountKey, owner solana.PublicKey, pos position.Position) {
	s.mu.Lock()
	s.positions[key] = &PositionEntry{Position: pos, Owner: owner, LastUpdate: time.Now()}
	s.mu.Unlock()
	s.notify(AccountChangeEvent{Key: key.String(), Kind: AccountKindPosition})
}

// GetPosition retrieves a position account.
func (s *Store) GetPosition(key AccountKey) (PositionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.positions[key]
	if !ok {
		return PositionEntry{}, false
	}
	return *e, true
}

// RemovePosition drops a position account, mirroring close_position closing
// the account once it's empty.
func (s *Store) RemovePosition(key AccountKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, key)
}

// SetTickArray adds or updates a tick-array account.
func (s *Store) SetTickArray(key AccountKey, arr tickarray.Store) {
	s.mu.Lock()
	s.tickArrays[key] = &TickArrayEntry{Store: arr, LastUpdate: time.Now()}
	s.mu.Unlock()
	s.notify(AccountChangeEvent{Key: key.String(), Kind: AccountKindTickArray})
}

// GetTickArray retrieves a tick-array account.
func (s *Store) GetTickArray(key AccountKey) (TickArrayEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tickArrays[key]
	if !ok {
		return TickArrayEntry{}, false
	}
	return *e, true
}

// Size reports how many accounts of each kind are cached.
func (s *Store) Size() (pools, positions, tickArrays int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pools), len(s.positions), len(s.tickArrays)
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools = make(map[AccountKey]*PoolEntry)
	s.positions = make(map[AccountKey]*PositionEntry)
	s.tickArrays = make(map[AccountKey]*TickArrayEntry)
}

func (s *Store) notify(evt AccountChangeEvent) {
	if s.feed == nil {
		return
	}
	s.feed.Broadcast(evt)
}
