package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Journal entry kinds.
const (
	KindProvision = "provision"
	KindTransfer  = "transfer"
	KindMint      = "mint"
)

// ErrDuplicateEntry is returned when a transaction hash is journaled twice.
var ErrDuplicateEntry = errors.New("journal entry already recorded")

// Entry is one relayed on-chain action attributed to a phone number.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	Phone     string         `json:"phone"`
	Kind      string         `json:"kind"`
	TxHash    common.Hash    `json:"tx_hash"`
	Wallet    common.Address `json:"wallet"`
	To        common.Address `json:"to"`
	Amount    string         `json:"amount"`
	CreatedAt time.Time      `json:"created_at"`
}

// Journal records relayed transactions so operators can audit what the
// relayer paid for on behalf of each user.
type Journal interface {
	Record(ctx context.Context, entry Entry) (Entry, error)
	ListByPhone(ctx context.Context, phone string, limit int) ([]Entry, error)
}

type memoryJournal struct {
	mu      sync.RWMutex
	entries []Entry
	byHash  map[common.Hash]struct{}
}

// NewMemoryJournal creates a concurrency-safe in-memory journal useful for
// development and unit tests.
func NewMemoryJournal() Journal {
	return &memoryJournal{byHash: make(map[common.Hash]struct{})}
}

func (j *memoryJournal) Record(_ context.Context, entry Entry) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.byHash[entry.TxHash]; exists {
		return Entry{}, ErrDuplicateEntry
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	j.byHash[entry.TxHash] = struct{}{}
	j.entries = append(j.entries, entry)
	return entry, nil
}

func (j *memoryJournal) ListByPhone(_ context.Context, phone string, limit int) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []Entry
	for _, e := range j.entries {
		if e.Phone == phone {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
