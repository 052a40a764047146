package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.  All prefix constants must be declared
// via this function; manually editing statePrefixes is not required.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
// ComputeRoot() iterates these prefixes to build the full world-state view.
var statePrefixes []string

var (
	prefixParcel  = registerPrefix("parcel:")
	prefixToken   = registerPrefix("token:")
	prefixOwner   = registerPrefix("owner:")
	prefixOwned   = registerPrefix("owned:")
	prefixSlot    = registerPrefix("slot:")
	prefixAppr    = registerPrefix("appr:")
	prefixOper    = registerPrefix("oper:")
	prefixListing = registerPrefix("listing:")
	prefixTxn     = registerPrefix("txn:")
	prefixEscrow  = registerPrefix("escrow:")
	prefixAcct    = registerPrefix("acct:")
	prefixMeta    = registerPrefix("meta:")
)

const (
	keyAdmin      = "meta:admin"
	keyMinter     = "meta:minter"
	keyMarket     = "meta:market"
	keyFees       = "meta:fees"
	keyTreasury   = "meta:treasury"
	keySeqParcel  = "meta:seq:parcel"
	keySeqListing = "meta:seq:listing"
	keySeqTxn     = "meta:seq:txn"
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	delete(s.dirty, key)
	s.deleted[key] = true
}

func (s *StateDB) getJSON(key string, out any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

func idKey(prefix string, id uint64) string {
	return prefix + strconv.FormatUint(id, 10)
}

// ---- Parcels ----

func (s *StateDB) GetParcel(id uint64) (*core.Parcel, error) {
	var p core.Parcel
	if err := s.getJSON(idKey(prefixParcel, id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetParcel(p *core.Parcel) error {
	return s.setJSON(idKey(prefixParcel, p.ID), p)
}

// ---- Tokens ----

func (s *StateDB) GetToken(id uint64) (*core.Token, error) {
	var t core.Token
	if err := s.getJSON(idKey(prefixToken, id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *StateDB) SetToken(t *core.Token) error {
	return s.setJSON(idKey(prefixToken, t.ID), t)
}

// ---- Ownership index ----

func (s *StateDB) GetParcelOwner(id uint64) (string, error) {
	data, err := s.get(idKey(prefixOwner, id))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *StateDB) SetParcelOwner(id uint64, owner string) error {
	s.set(idKey(prefixOwner, id), []byte(owner))
	return nil
}

func (s *StateDB) GetOwnedParcels(owner string) ([]uint64, error) {
	var ids []uint64
	err := s.getJSON(prefixOwned+owner, &ids)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil // empty list
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *StateDB) SetOwnedParcels(owner string, ids []uint64) error {
	if ids == nil {
		ids = []uint64{}
	}
	return s.setJSON(prefixOwned+owner, ids)
}

func (s *StateDB) GetParcelSlot(id uint64) (int, error) {
	var slot int
	if err := s.getJSON(idKey(prefixSlot, id), &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

func (s *StateDB) SetParcelSlot(id uint64, slot int) error {
	return s.setJSON(idKey(prefixSlot, id), slot)
}

func (s *StateDB) DeleteParcelSlot(id uint64) error {
	s.del(idKey(prefixSlot, id))
	return nil
}

// ---- Transfer grants ----

func (s *StateDB) GetApproved(id uint64) (string, error) {
	data, err := s.get(idKey(prefixAppr, id))
	if errors.Is(err, core.ErrNotFound) {
		return "", nil // no grant
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *StateDB) SetApproved(id uint64, operator string) error {
	s.set(idKey(prefixAppr, id), []byte(operator))
	return nil
}

func (s *StateDB) DeleteApproved(id uint64) error {
	s.del(idKey(prefixAppr, id))
	return nil
}

func (s *StateDB) GetOperator(owner, operator string) (bool, error) {
	data, err := s.get(prefixOper + owner + ":" + operator)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return string(data) == "1", nil
}

func (s *StateDB) SetOperator(owner, operator string, approved bool) error {
	val := "0"
	if approved {
		val = "1"
	}
	s.set(prefixOper+owner+":"+operator, []byte(val))
	return nil
}

// ---- Marketplace ----

func (s *StateDB) GetListing(id uint64) (*core.Listing, error) {
	var l core.Listing
	if err := s.getJSON(idKey(prefixListing, id), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *StateDB) SetListing(l *core.Listing) error {
	return s.setJSON(idKey(prefixListing, l.ID), l)
}

func (s *StateDB) GetTransaction(id uint64) (*core.Transaction, error) {
	var t core.Transaction
	if err := s.getJSON(idKey(prefixTxn, id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *StateDB) SetTransaction(t *core.Transaction) error {
	return s.setJSON(idKey(prefixTxn, t.ID), t)
}

// ---- Money ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAcct+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address, Balance: uint256.NewInt(0)}, nil
	}
	if err != nil {
		return nil, err
	}
	if acc.Balance == nil {
		acc.Balance = uint256.NewInt(0)
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAcct+acc.Address, acc)
}

func (s *StateDB) GetEscrow(address string) (*uint256.Int, error) {
	var amount uint256.Int
	err := s.getJSON(prefixEscrow+address, &amount)
	if errors.Is(err, core.ErrNotFound) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

func (s *StateDB) SetEscrow(address string, amount *uint256.Int) error {
	return s.setJSON(prefixEscrow+address, amount)
}

func (s *StateDB) GetTreasury() (*uint256.Int, error) {
	var amount uint256.Int
	err := s.getJSON(keyTreasury, &amount)
	if errors.Is(err, core.ErrNotFound) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

func (s *StateDB) SetTreasury(amount *uint256.Int) error {
	return s.setJSON(keyTreasury, amount)
}

// ---- Authority and fee schedule ----

func (s *StateDB) GetFees() (*core.Fees, error) {
	var f core.Fees
	if err := s.getJSON(keyFees, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *StateDB) SetFees(f *core.Fees) error {
	return s.setJSON(keyFees, f)
}

func (s *StateDB) GetAdmin() (string, error) {
	data, err := s.get(keyAdmin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *StateDB) SetAdmin(address string) error {
	s.set(keyAdmin, []byte(address))
	return nil
}

func (s *StateDB) GetMinter() (string, error) {
	data, err := s.get(keyMinter)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *StateDB) SetMinter(address string) error {
	s.set(keyMinter, []byte(address))
	return nil
}

func (s *StateDB) GetMarket() (string, error) {
	data, err := s.get(keyMarket)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *StateDB) SetMarket(address string) error {
	s.set(keyMarket, []byte(address))
	return nil
}

// ---- Id allocation ----

// nextID increments the counter stored at key and returns the new value.
// The write goes through the dirty buffer, so a reverted command does not
// burn an id.
func (s *StateDB) nextID(key string) (uint64, error) {
	var cur uint64
	err := s.getJSON(key, &cur)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return 0, err
	}
	cur++
	if err := s.setJSON(key, cur); err != nil {
		return 0, err
	}
	return cur, nil
}

func (s *StateDB) NextParcelID() (uint64, error)      { return s.nextID(keySeqParcel) }
func (s *StateDB) NextListingID() (uint64, error)     { return s.nextID(keySeqListing) }
func (s *StateDB) NextTransactionID() (uint64, error) { return s.nextID(keySeqTxn) }

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot maps are deep-copied so that subsequent writes cannot corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete ledger state.
// It merges all persisted state entries (scanned from DB by the known state
// prefixes) with the current write buffer, then hashes the sorted key-value
// pairs using length-prefix encoding.  It does NOT flush or modify state.
func (s *StateDB) ComputeRoot() string {
	// Step 1: collect all persisted state entries from DB.
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			k := string(it.Key())
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[k] = v
		}
		it.Release()
	}

	// Step 2: apply in-memory write buffer (uncommitted changes).
	for k, v := range s.dirty {
		merged[k] = v
	}

	// Step 3: exclude deleted keys.
	for k := range s.deleted {
		delete(merged, k)
	}

	// Step 4: sort keys for determinism.
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Step 5: length-prefix encode each key-value pair and hash.
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// Batch and then clears it. A command's writes land together or not at all.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
