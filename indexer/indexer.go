// Package indexer maintains a secondary identifier→parcels index over
// committed ledger events, so administrative UIs can look up every parcel
// registered under one identifier token without scanning full state. The
// index is informational and lives outside the atomic ledger state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/events"
	"github.com/landvn/landledger/storage"
)

const prefixIdentifierParcels = "idx:ident:"

// Indexer subscribes to ledger events and updates secondary lookup tables.
type Indexer struct {
	db storage.DB
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db}
	emitter.Subscribe(events.EventParcelRegistered, idx.onParcelRegistered)
	emitter.Subscribe(events.EventTokenTransfer, idx.onTokenTransfer)
	return idx
}

// GetParcelsByIdentifier returns all parcel ids currently recorded under
// the given identifier token.
func (idx *Indexer) GetParcelsByIdentifier(identifier string) ([]uint64, error) {
	return idx.getList(prefixIdentifierParcels + identifier)
}

// ---- event handlers ----

func (idx *Indexer) onParcelRegistered(ev events.Event) {
	identifier, _ := ev.Data["identifier"].(string)
	parcelID, ok := asUint64(ev.Data["parcel_id"])
	if identifier == "" || !ok {
		return
	}
	_ = idx.addToList(prefixIdentifierParcels+identifier, parcelID)
}

func (idx *Indexer) onTokenTransfer(ev events.Event) {
	identifier, _ := ev.Data["identifier"].(string)
	prev, _ := ev.Data["prev_identifier"].(string)
	tokenID, ok := asUint64(ev.Data["token_id"])
	if !ok || identifier == "" {
		return
	}
	if prev != "" {
		if err := idx.removeFromList(prefixIdentifierParcels+prev, tokenID); err != nil {
			return
		}
	}
	_ = idx.addToList(prefixIdentifierParcels+identifier, tokenID)
}

// asUint64 tolerates events that round-tripped through JSON, where numbers
// arrive as float64.
func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case float64:
		return uint64(n), true
	default:
		return 0, false
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]uint64, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key string, value uint64) error {
	ids, _ := idx.getList(key)
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

func (idx *Indexer) removeFromList(key string, value uint64) error {
	ids, _ := idx.getList(key)
	filtered := ids[:0]
	for _, id := range ids {
		if id != value {
			filtered = append(filtered, id)
		}
	}
	data, err := json.Marshal(filtered)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
