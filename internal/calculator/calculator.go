package calculator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pnlreplay/internal/engine"
	"pnlreplay/types"

	"github.com/shopspring/decimal"
)

// DefaultLotSize is the number of shares in one lot.
const DefaultLotSize = 100

var (
	ErrInvalidLot      = errors.New("lot must be a positive whole number")
	ErrJournalMismatch = errors.New("stored journal does not replay to the same position")
)

// Store persists the journal of one session. A nil Store keeps the journal in memory only.
type Store interface {
	AppendEntry(ctx context.Context, sessionId string, o types.TradeOutcome) error
	ListEntries(ctx context.Context, sessionId string) ([]types.TradeOutcome, error)
	ResetSession(ctx context.Context, sessionId string) error
}

// Session is a manual trade-entry journal. It starts empty, grows by one
// entry per AddTrade and is cleared only by Reset.
type Session struct {
	id      string
	lotSize int64
	tracker *engine.Tracker
	store   Store
	now     func() time.Time
}

func NewSession(lotSize int64) *Session {
	if lotSize <= 0 {
		lotSize = DefaultLotSize
	}
	return &Session{
		lotSize: lotSize,
		tracker: engine.NewTracker(types.PositionState{}, true),
		now:     time.Now,
	}
}

// OpenSession restores a persisted session by replaying its stored entries
// through a fresh tracker.
func OpenSession(ctx context.Context, store Store, sessionId string, lotSize int64) (*Session, error) {
	s := NewSession(lotSize)
	s.id = sessionId
	s.store = store

	entries, err := store.ListEntries(ctx, sessionId)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionId, err)
	}
	for _, stored := range entries {
		o, err := s.tracker.Apply(stored.Trade)
		if err != nil {
			return nil, fmt.Errorf("replay entry %d: %w", stored.Seq, err)
		}
		if o.Seq != stored.Seq || o.PositionAfter != stored.PositionAfter || !o.AvgCostAfter.Equal(stored.AvgCostAfter) {
			return nil, fmt.Errorf("%w: entry %d", ErrJournalMismatch, stored.Seq)
		}
	}
	return s, nil
}

func (s *Session) Id() string {
	return s.id
}

func (s *Session) LotSize() int64 {
	return s.lotSize
}

// AddTrade converts lot to shares and applies one execution. A rejected trade
// leaves the session unchanged.
func (s *Session) AddTrade(ctx context.Context, side types.Side, price decimal.Decimal, lot int64) (types.TradeOutcome, error) {
	if lot <= 0 {
		return types.TradeOutcome{}, fmt.Errorf("%w: got %d", ErrInvalidLot, lot)
	}
	trade := types.NewTrade(s.now().UTC(), side, price, lot*s.lotSize)

	// validate before persisting so the store never holds a rejected trade
	_, preview, err := engine.ApplyTrade(s.tracker.State(), trade)
	if err != nil {
		return types.TradeOutcome{}, err
	}
	if s.store != nil {
		preview.Seq = s.tracker.Len()
		if err := s.store.AppendEntry(ctx, s.id, preview); err != nil {
			return types.TradeOutcome{}, err
		}
	}
	return s.tracker.Apply(trade)
}

func (s *Session) State() types.PositionState {
	return s.tracker.State()
}

func (s *Session) Journal() []types.TradeOutcome {
	return s.tracker.Journal()
}

// Floating is the unrealized P/L of the open position at mark.
func (s *Session) Floating(mark decimal.Decimal) decimal.Decimal {
	return engine.UnrealizedPL(s.tracker.State(), mark)
}

// Lots is the open position expressed in lots.
func (s *Session) Lots() decimal.Decimal {
	return decimal.NewFromInt(s.tracker.State().Quantity).Div(decimal.NewFromInt(s.lotSize))
}

// Reset clears the journal and returns to a flat position.
func (s *Session) Reset(ctx context.Context) error {
	if s.store != nil {
		if err := s.store.ResetSession(ctx, s.id); err != nil {
			return err
		}
	}
	s.tracker.Reset()
	return nil
}
