// Package memory keeps storage in process memory.
// It backs development runs without a database and service tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

type dataset struct {
	orders       map[uuid.UUID]models.Order
	events       []models.OrderEvent
	wallets      map[string]models.Wallet // by owner ref
	transactions []models.Transaction
	channels     map[uuid.UUID]models.Channel
	messages     []models.Message
	effects      []models.Effect

	eventSeq   int64
	messageSeq int64
}

func newDataset() *dataset {
	return &dataset{
		orders:   make(map[uuid.UUID]models.Order),
		wallets:  make(map[string]models.Wallet),
		channels: make(map[uuid.UUID]models.Channel),
	}
}

// Stored values are copied on read and write, so shallow copies of the containers are enough
func (d *dataset) clone() *dataset {
	return &dataset{
		orders:       maps.Clone(d.orders),
		events:       slices.Clone(d.events),
		wallets:      maps.Clone(d.wallets),
		transactions: slices.Clone(d.transactions),
		channels:     maps.Clone(d.channels),
		messages:     slices.Clone(d.messages),
		effects:      slices.Clone(d.effects),
		eventSeq:     d.eventSeq,
		messageSeq:   d.messageSeq,
	}
}

type state struct {
	mu   sync.Mutex
	data *dataset
}

// Storage serializes transactions with single lock.
// Every InTx holds the lock until fn returns, which is enough for row locks and CAS updates.
type Storage struct {
	st   *state
	inTx bool
}

func NewStorage() *Storage {
	return &Storage{st: &state{data: newDataset()}}
}

func (s *Storage) Order() repository.OrderRepo {
	return &OrderRepo{s: s}
}

func (s *Storage) Wallet() repository.WalletRepo {
	return &WalletRepo{s: s}
}

func (s *Storage) Chat() repository.ChatRepo {
	return &ChatRepo{s: s}
}

func (s *Storage) Effect() repository.EffectRepo {
	return &EffectRepo{s: s}
}

func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !s.inTx {
		s.st.mu.Lock()
		defer s.st.mu.Unlock()
	}

	snapshot := s.st.data.clone()

	err := fn(&Storage{st: s.st, inTx: true})
	if err != nil {
		s.st.data = snapshot
	}

	return err
}

// do runs fn with the lock held unless the storage already runs in transaction
func (s *Storage) do(fn func(d *dataset) error) error {
	if !s.inTx {
		s.st.mu.Lock()
		defer s.st.mu.Unlock()
	}

	return fn(s.st.data)
}
