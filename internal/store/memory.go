package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/types"
)

var _ interfaces.PositionStore = (*MemoryStore)(nil)

// MemoryStore keeps positions and the cash balance in process memory. It
// backs DRY_RUN mode and the test suite.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]*types.Position
	cash      float64
}

func NewMemoryStore(startingCash float64) *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]*types.Position),
		cash:      startingCash,
	}
}

func (s *MemoryStore) Create(ctx context.Context, pos *types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	if _, exists := s.positions[pos.ID]; exists {
		return fmt.Errorf("position %s already exists", pos.ID)
	}
	if pos.Status == "" {
		pos.Status = types.StatusOpen
	}
	if pos.EntryTime.IsZero() {
		pos.EntryTime = time.Now()
	}
	cp := clonePosition(pos)
	s.positions[pos.ID] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s not found", id)
	}
	return clonePosition(p), nil
}

func (s *MemoryStore) UpdateValue(ctx context.Context, id string, currentValue, unrealizedPnL float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return fmt.Errorf("position %s not found", id)
	}
	if p.Status != types.StatusOpen {
		return nil
	}
	p.CurrentValue = currentValue
	p.UnrealizedPnL = unrealizedPnL
	return nil
}

// Close transitions OPEN -> CLOSED. The second close of the same position
// returns (false, nil) without touching P&L.
func (s *MemoryStore) Close(ctx context.Context, id string, reason types.CloseReason) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return false, fmt.Errorf("position %s not found", id)
	}
	if p.Status != types.StatusOpen {
		return false, nil
	}
	now := time.Now()
	p.Status = types.StatusClosed
	p.CloseReason = reason
	p.ExitTime = &now
	p.RealizedPnL = p.UnrealizedPnL
	p.UnrealizedPnL = 0
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context, status types.PositionStatus) ([]*types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Position
	for _, p := range s.positions {
		if p.Status == status {
			out = append(out, clonePosition(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

func (s *MemoryStore) Ledger(ctx context.Context) ([]*types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Position
	for _, p := range s.positions {
		if p.Status == types.StatusClosed {
			out = append(out, clonePosition(p))
		}
	}
	// A closed position inserted without an exit time sorts last.
	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].ExitTime, out[j].ExitTime
		if ei == nil || ej == nil {
			return ej == nil && ei != nil
		}
		return ei.Before(*ej)
	})
	return out, nil
}

func (s *MemoryStore) HeldSymbols(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, p := range s.positions {
		if p.Status == types.StatusOpen && !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) CashBalance(ctx context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cash, nil
}

func (s *MemoryStore) AdjustCash(ctx context.Context, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cash+delta < 0 {
		return fmt.Errorf("cash adjustment %.2f would overdraw balance %.2f", delta, s.cash)
	}
	s.cash += delta
	return nil
}

func (s *MemoryStore) MarkAdvisorCheck(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return fmt.Errorf("position %s not found", id)
	}
	now := time.Now()
	p.LastAdvisorCheck = &now
	return nil
}

func clonePosition(p *types.Position) *types.Position {
	cp := *p
	cp.Legs = append([]types.ContractLeg(nil), p.Legs...)
	if p.ExitTime != nil {
		t := *p.ExitTime
		cp.ExitTime = &t
	}
	if p.LastAdvisorCheck != nil {
		t := *p.LastAdvisorCheck
		cp.LastAdvisorCheck = &t
	}
	return &cp
}
