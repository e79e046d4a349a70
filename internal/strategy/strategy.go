package strategy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MaxAPICalls bounds the per-strategy call history.
const MaxAPICalls = 100

var (
	ErrInvalidName = errors.New("invalid name")
	ErrExists      = errors.New("strategy already exists")
	ErrNotFound    = errors.New("strategy not found")
	ErrBusy        = errors.New("strategy is processing")
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

var reservedNames = map[string]struct{}{
	"strategies": {},
	"static":     {},
	"api":        {},
	"status":     {},
	"debug":      {},
	"users":      {},
	"webhook":    {},
}

// ValidateName checks the identity rules shared by strategy names and owner ids.
func ValidateName(name string) error {
	if len(name) < 3 || len(name) > 50 {
		return fmt.Errorf("%w: %q must be 3-50 characters", ErrInvalidName, name)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be alphanumeric or underscore", ErrInvalidName, name)
	}
	if _, ok := reservedNames[strings.ToLower(name)]; ok {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}

// APICall is one broker request/response pair recorded on a strategy.
type APICall struct {
	Request   map[string]any `json:"request"`
	Response  map[string]any `json:"response"`
	Timestamp time.Time      `json:"timestamp"`
}

// Strategy is the unit of execution identity. All state sits behind mu so
// the engine (holding the processing guard) and manual overrides never race.
type Strategy struct {
	mu sync.Mutex

	name        string
	owner       string
	longSymbol  string
	shortSymbol string

	cashBalance decimal.Decimal

	inCooldown      bool
	cooldownEndTime time.Time

	processing bool

	apiCalls []APICall

	createdAt time.Time
	updatedAt time.Time
	version   uint64
}

func New(owner, name, longSymbol, shortSymbol string, cash decimal.Decimal) (*Strategy, error) {
	if err := ValidateName(owner); err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Strategy{
		name:        strings.ToLower(name),
		owner:       strings.ToLower(owner),
		longSymbol:  normalizeSymbol(longSymbol),
		shortSymbol: normalizeSymbol(shortSymbol),
		cashBalance: cash,
		createdAt:   now,
		updatedAt:   now,
		version:     1,
	}, nil
}

// Restore rebuilds a strategy from persisted state without touching timestamps.
func Restore(snap Snapshot, calls []APICall) (*Strategy, error) {
	s, err := New(snap.Owner, snap.Name, snap.LongSymbol, snap.ShortSymbol, snap.CashBalance)
	if err != nil {
		return nil, err
	}
	if snap.InCooldown && snap.CooldownEndTime != nil {
		s.inCooldown = true
		s.cooldownEndTime = *snap.CooldownEndTime
	}
	if len(calls) > MaxAPICalls {
		calls = calls[len(calls)-MaxAPICalls:]
	}
	s.apiCalls = append([]APICall(nil), calls...)
	if !snap.CreatedAt.IsZero() {
		s.createdAt = snap.CreatedAt
	}
	if !snap.UpdatedAt.IsZero() {
		s.updatedAt = snap.UpdatedAt
	}
	return s, nil
}

func normalizeSymbol(sym string) string {
	return strings.TrimSpace(sym)
}

func (s *Strategy) Name() string  { return s.name }
func (s *Strategy) Owner() string { return s.owner }

// Key identifies a strategy across owners.
func (s *Strategy) Key() string { return s.owner + "/" + s.name }

func (s *Strategy) Symbols() (long, short string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.longSymbol, s.shortSymbol
}

// UpdateSymbols replaces the configured symbols; nil leaves a side unchanged
// and a blank string clears it.
func (s *Strategy) UpdateSymbols(long, short *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if long != nil {
		s.longSymbol = normalizeSymbol(*long)
	}
	if short != nil {
		s.shortSymbol = normalizeSymbol(*short)
	}
	s.touchLocked()
}

func (s *Strategy) CashBalance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cashBalance
}

func (s *Strategy) SetCashBalance(v decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cashBalance = v
	s.touchLocked()
}

// AdjustCash adds delta in one critical section and returns the old and new
// balance. With floorZero the result never drops below zero.
func (s *Strategy) AdjustCash(delta decimal.Decimal, floorZero bool) (before, after decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before = s.cashBalance
	after = before.Add(delta)
	if floorZero && after.IsNegative() {
		after = decimal.Zero
	}
	s.cashBalance = after
	s.touchLocked()
	return before, after
}

func (s *Strategy) SetCooldown(end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inCooldown = true
	s.cooldownEndTime = end
	s.touchLocked()
}

func (s *Strategy) ClearCooldown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearCooldownLocked()
}

func (s *Strategy) clearCooldownLocked() {
	s.inCooldown = false
	s.cooldownEndTime = time.Time{}
	s.touchLocked()
}

// CheckCooldown reports whether the cooldown is active at now, clearing both
// fields when the window has already elapsed.
func (s *Strategy) CheckCooldown(now time.Time) (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inCooldown {
		return false, time.Time{}
	}
	if now.After(s.cooldownEndTime) {
		s.clearCooldownLocked()
		return false, time.Time{}
	}
	return true, s.cooldownEndTime
}

// TryBeginProcessing acquires the processing guard. It is not re-entrant.
func (s *Strategy) TryBeginProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return false
	}
	s.processing = true
	s.touchLocked()
	return true
}

func (s *Strategy) EndProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
	s.touchLocked()
}

func (s *Strategy) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

func (s *Strategy) AddAPICall(request, response map[string]any, at time.Time) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiCalls = append(s.apiCalls, APICall{
		Request:   copyMap(request),
		Response:  copyMap(response),
		Timestamp: at,
	})
	if over := len(s.apiCalls) - MaxAPICalls; over > 0 {
		s.apiCalls = append([]APICall(nil), s.apiCalls[over:]...)
	}
	s.touchLocked()
}

// APICalls returns the history oldest first.
func (s *Strategy) APICalls() []APICall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]APICall(nil), s.apiCalls...)
}

type APICallPage struct {
	Items   []APICall `json:"logs"`
	Skip    int       `json:"skip"`
	Limit   int       `json:"limit"`
	Total   int       `json:"total"`
	HasMore bool      `json:"has_more"`
}

// APICallPage pages the history newest first; skip counts from the newest entry.
func (s *Strategy) APICallPage(skip, limit int) APICallPage {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	total := len(s.apiCalls)
	page := APICallPage{Items: []APICall{}, Skip: skip, Limit: limit, Total: total, HasMore: skip+limit < total}
	end := total - skip
	start := end - limit
	if start < 0 {
		start = 0
	}
	for i := end - 1; i >= start; i-- {
		page.Items = append(page.Items, s.apiCalls[i])
	}
	return page
}

// Version increases on every mutation.
func (s *Strategy) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Strategy) touchLocked() {
	s.updatedAt = time.Now().UTC()
	s.version++
}

type Snapshot struct {
	Name            string          `json:"name"`
	Owner           string          `json:"owner"`
	LongSymbol      string          `json:"long_symbol,omitempty"`
	ShortSymbol     string          `json:"short_symbol,omitempty"`
	CashBalance     decimal.Decimal `json:"cash_balance"`
	InCooldown      bool            `json:"in_cooldown"`
	CooldownEndTime *time.Time      `json:"cooldown_end_time,omitempty"`
	IsProcessing    bool            `json:"is_processing"`
	APICallsCount   int             `json:"api_calls_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         uint64          `json:"-"`
}

func (s *Strategy) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Name:          s.name,
		Owner:         s.owner,
		LongSymbol:    s.longSymbol,
		ShortSymbol:   s.shortSymbol,
		CashBalance:   s.cashBalance,
		InCooldown:    s.inCooldown,
		IsProcessing:  s.processing,
		APICallsCount: len(s.apiCalls),
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
		Version:       s.version,
	}
	if s.inCooldown {
		end := s.cooldownEndTime
		snap.CooldownEndTime = &end
	}
	return snap
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
