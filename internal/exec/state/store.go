// Package state persists the order lifecycle document: one JSON map from
// plan id to its plan snapshot, status, fills and venue order ids. A single
// Store owns the file; every mutation rewrites it atomically so observers
// reading the file never see a torn document.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// Entry is one plan's persisted lifecycle. The plan snapshot is kept as raw
// JSON so the document round-trips byte for byte regardless of plan shape.
type Entry struct {
	Plan        json.RawMessage   `json:"plan"`
	Status      domain.OrderStatus `json:"status"`
	Fills       []domain.Fill     `json:"fills"`
	ExchangeIDs map[string]string `json:"exchange_ids"`
}

// OpenOrder is an Entry annotated with its plan id, as returned by
// LoadOpenOrders.
type OpenOrder struct {
	PlanID string `json:"plan_id"`
	Entry
}

// Store owns the order-state document. All access goes through its lock;
// a second Store on the same path would break the single-writer contract.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store over path ("journal/orders_state.json" when
// empty). The file is created lazily on first write.
func NewStore(path string) *Store {
	if path == "" {
		path = filepath.Join("journal", "orders_state.json")
	}
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// SaveIntent snapshots the plan under planID with a fresh intent status,
// replacing any previous entry for the same id.
func (s *Store) SaveIntent(planID string, plan interface{}) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", planID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc[planID] = &Entry{
		Plan:        raw,
		Status:      domain.StatusIntent,
		Fills:       []domain.Fill{},
		ExchangeIDs: map[string]string{},
	}
	return s.save(doc)
}

// UpdateStatus advances the plan's status and merges in venue order ids.
// Backward transitions are rejected so the lifecycle stays monotonic.
func (s *Store) UpdateStatus(planID string, status domain.OrderStatus, exchangeIDs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	entry := doc[planID]
	if entry == nil {
		entry = &Entry{Fills: []domain.Fill{}, ExchangeIDs: map[string]string{}}
		doc[planID] = entry
	}
	if !entry.Status.CanTransition(status) && entry.Status != "" {
		return domain.Ef(domain.KindExecutor, "plan %s cannot move %s -> %s", planID, entry.Status, status)
	}
	entry.Status = status
	if entry.ExchangeIDs == nil {
		entry.ExchangeIDs = map[string]string{}
	}
	for role, id := range exchangeIDs {
		entry.ExchangeIDs[role] = id
	}
	return s.save(doc)
}

// AppendFill records one execution against the plan.
func (s *Store) AppendFill(planID string, fill domain.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	entry := doc[planID]
	if entry == nil {
		entry = &Entry{Status: domain.StatusIntent, ExchangeIDs: map[string]string{}}
		doc[planID] = entry
	}
	entry.Fills = append(entry.Fills, fill)
	return s.save(doc)
}

// Get returns the entry for planID, or nil when unknown.
func (s *Store) Get(planID string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc[planID], nil
}

// LoadOpenOrders lists every plan that has not reached a terminal status,
// in plan-id order.
func (s *Store) LoadOpenOrders() ([]OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	open := make([]OpenOrder, 0, len(doc))
	for planID, entry := range doc {
		switch entry.Status {
		case domain.StatusFilled, domain.StatusCanceled, domain.StatusRejected:
			continue
		}
		open = append(open, OpenOrder{PlanID: planID, Entry: *entry})
	}
	sort.Slice(open, func(i, j int) bool { return open[i].PlanID < open[j].PlanID })
	return open, nil
}

// load reads the document; a missing file is an empty document, a corrupt
// one is an error so state is never silently discarded.
func (s *Store) load() (map[string]*Entry, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Entry{}, nil
		}
		return nil, fmt.Errorf("read order state: %w", err)
	}

	doc := map[string]*Entry{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode order state %s: %w", s.path, err)
	}
	return doc, nil
}

// save writes the document via rename-over-temp so readers always see a
// complete file. Map keys serialize sorted, keeping diffs stable.
func (s *Store) save(doc map[string]*Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode order state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write order state temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace order state: %w", err)
	}
	return nil
}
