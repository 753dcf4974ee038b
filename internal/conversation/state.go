package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conversation states the router keys on. States are not a closed enum; the
// zero value means no flow is in progress.
const (
	StateNone                  = ""
	StateAwaitingProfessional  = "awaiting_professional"
	StateAwaitingSlot          = "awaiting_slot"
	StateAwaitingPaymentType   = "awaiting_payment_type"
	StateAwaitingPaymentMethod = "awaiting_payment_method"
)

// State is the persisted conversation state for one identity. Mutated only
// through Transition/Clear so restarts never lose mid-flow context.
type State struct {
	ClinicID    string
	Phone       string
	State       string
	Waiting     map[string]string
	ContactName string
	HumanUntil  *time.Time
	UpdatedAt   time.Time
}

// HumanActive reports whether the human-takeover flag is live.
func (s *State) HumanActive(now time.Time) bool {
	return s != nil && s.HumanUntil != nil && s.HumanUntil.After(now)
}

// WaitingValue reads one waiting-context field, tolerating a nil map.
func (s *State) WaitingValue(key string) string {
	if s == nil || s.Waiting == nil {
		return ""
	}
	return s.Waiting[key]
}

type stateQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StateStore persists conversation state in PostgreSQL.
type StateStore struct {
	db stateQuerier
}

// NewStateStore creates a store backed by pgx pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &StateStore{db: pool}
}

// NewStateStoreWithQuerier allows injecting mocks for tests.
func NewStateStoreWithQuerier(q stateQuerier) *StateStore {
	if q == nil {
		panic("conversation: querier required")
	}
	return &StateStore{db: q}
}

// Get loads the conversation state, returning a fresh zero state when none is
// persisted yet.
func (s *StateStore) Get(ctx context.Context, clinicID, phone string) (*State, error) {
	query := `
		SELECT state, waiting, COALESCE(contact_name, ''), human_until, updated_at
		FROM conversation_states
		WHERE clinic_id = $1 AND phone = $2
	`
	state := &State{ClinicID: clinicID, Phone: phone}
	var waitingJSON []byte
	err := s.db.QueryRow(ctx, query, clinicID, phone).Scan(
		&state.State, &waitingJSON, &state.ContactName, &state.HumanUntil, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &State{ClinicID: clinicID, Phone: phone}, nil
		}
		return nil, fmt.Errorf("conversation: load state: %w", err)
	}
	if len(waitingJSON) > 0 {
		if err := json.Unmarshal(waitingJSON, &state.Waiting); err != nil {
			return nil, fmt.Errorf("conversation: decode waiting context: %w", err)
		}
	}
	return state, nil
}

// Save upserts the state row.
func (s *StateStore) Save(ctx context.Context, state *State) error {
	waitingJSON, err := json.Marshal(state.Waiting)
	if err != nil {
		return fmt.Errorf("conversation: encode waiting context: %w", err)
	}
	query := `
		INSERT INTO conversation_states (clinic_id, phone, state, waiting, contact_name, human_until, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (clinic_id, phone) DO UPDATE SET
			state = EXCLUDED.state,
			waiting = EXCLUDED.waiting,
			contact_name = EXCLUDED.contact_name,
			human_until = EXCLUDED.human_until,
			updated_at = now()
	`
	_, err = s.db.Exec(ctx, query,
		state.ClinicID, state.Phone, state.State, waitingJSON, state.ContactName, state.HumanUntil,
	)
	if err != nil {
		return fmt.Errorf("conversation: save state: %w", err)
	}
	return nil
}

// Clear resets a conversation back to the idle state, keeping contact name
// and the takeover flag.
func (s *StateStore) Clear(ctx context.Context, clinicID, phone string) error {
	query := `
		UPDATE conversation_states
		SET state = '', waiting = NULL, updated_at = now()
		WHERE clinic_id = $1 AND phone = $2
	`
	if _, err := s.db.Exec(ctx, query, clinicID, phone); err != nil {
		return fmt.Errorf("conversation: clear state: %w", err)
	}
	return nil
}

// SetHumanUntil flips the human-takeover flag; a nil until disables it.
func (s *StateStore) SetHumanUntil(ctx context.Context, clinicID, phone string, until *time.Time) error {
	query := `
		INSERT INTO conversation_states (clinic_id, phone, state, human_until, updated_at)
		VALUES ($1, $2, '', $3, now())
		ON CONFLICT (clinic_id, phone) DO UPDATE SET
			human_until = EXCLUDED.human_until,
			updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query, clinicID, phone, until); err != nil {
		return fmt.Errorf("conversation: set human takeover: %w", err)
	}
	return nil
}
