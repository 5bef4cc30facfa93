// store.go - Backing store for per-account encrypted slots.
//
// The store holds ciphertext handles and public flags only; plaintext never
// touches it. Presence of a handle doubles as the existence flag
// distinguishing "never written" from "written, possibly zero".

package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"confledger/internal/confidential"
)

// Slot identifies one of the three per-account encrypted slots.
type Slot int

const (
	SlotBalance Slot = iota
	SlotStake
	SlotStatus
	slotCount
)

// Store is the key-value backing for the ledger's four mappings. The ledger
// owns it exclusively; the boolean returned by Get is the existence flag.
type Store interface {
	Get(slot Slot, id common.Address) (confidential.Ciphertext, bool)
	Set(slot Slot, id common.Address, c confidential.Ciphertext)
	Claimed(id common.Address) bool
	SetClaimed(id common.Address)
}

// MemoryStore is the in-memory Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	slots   [slotCount]map[common.Address]confidential.Ciphertext
	claimed map[common.Address]bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{claimed: make(map[common.Address]bool)}
	for i := range s.slots {
		s.slots[i] = make(map[common.Address]confidential.Ciphertext)
	}
	return s
}

func (s *MemoryStore) Get(slot Slot, id common.Address) (confidential.Ciphertext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.slots[slot][id]
	return c, ok
}

func (s *MemoryStore) Set(slot Slot, id common.Address, c confidential.Ciphertext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot][id] = c
}

func (s *MemoryStore) Claimed(id common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claimed[id]
}

func (s *MemoryStore) SetClaimed(id common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimed[id] = true
}

// snapshot is the JSON form of the store: hex handles keyed by hex address.
type snapshot struct {
	Balances map[string]string `json:"balances"`
	Stakes   map[string]string `json:"stakes"`
	Statuses map[string]string `json:"statuses"`
	Claimed  []string          `json:"claimed"`
}

// SaveToFile saves the store to a JSON file. Only handles and public flags
// are written. The snapshot goes to a temporary file first and is renamed
// into place, so concurrent saves and crashes never leave a torn file for
// LoadStoreFromFile to reject.
func (s *MemoryStore) SaveToFile(path string) error {
	s.mu.RLock()
	snap := snapshot{
		Balances: make(map[string]string),
		Stakes:   make(map[string]string),
		Statuses: make(map[string]string),
	}
	maps := []map[string]string{snap.Balances, snap.Stakes, snap.Statuses}
	for slot, m := range s.slots {
		for id, c := range m {
			maps[slot][id.Hex()] = c.Hex()
		}
	}
	for id, claimed := range s.claimed {
		if claimed {
			snap.Claimed = append(snap.Claimed, id.Hex())
		}
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}

// LoadStoreFromFile loads a store from a JSON file.
// Returns an error if the file is invalid or cannot be read.
func LoadStoreFromFile(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, err
	}

	s := NewMemoryStore()
	maps := []map[string]string{snap.Balances, snap.Stakes, snap.Statuses}
	for slot, m := range maps {
		for idHex, cHex := range m {
			var c confidential.Ciphertext
			if err := c.UnmarshalText([]byte(cHex)); err != nil {
				return nil, err
			}
			s.slots[slot][common.HexToAddress(idHex)] = c
		}
	}
	for _, idHex := range snap.Claimed {
		s.claimed[common.HexToAddress(idHex)] = true
	}
	return s, nil
}
