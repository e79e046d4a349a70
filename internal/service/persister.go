package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tradehook/internal/models"
	"tradehook/internal/repository"
	"tradehook/internal/strategy"
)

// Persister mirrors the in-memory strategy directory into storage. Writes are
// batched: Flush upserts only strategies whose version moved since the last
// successful flush. Deletes wait for an in-flight flush, so a row collected
// before the delete is never written back after it.
type Persister struct {
	Repo      repository.Repository
	Directory *strategy.Directory
	Logger    *zap.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	flushed map[string]uint64
}

// Load hydrates the directory from storage. Processing guards are never
// persisted, so every restored strategy starts idle.
func (p *Persister) Load(ctx context.Context) (int, error) {
	if p == nil || p.Repo == nil || p.Directory == nil {
		return 0, nil
	}
	rows, err := p.Repo.ListStrategies(ctx, repository.ListStrategiesParams{})
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, row := range rows {
		s, err := strategyFromRow(row)
		if err != nil {
			if p.Logger != nil {
				p.Logger.Warn("skipping unreadable strategy row",
					zap.String("owner", row.Owner),
					zap.String("strategy", row.Name),
					zap.Error(err),
				)
			}
			continue
		}
		p.Directory.Put(s)
		p.markFlushed(s.Key(), s.Version())
		loaded++
	}
	if p.Logger != nil {
		p.Logger.Info("strategies loaded", zap.Int("count", loaded))
	}
	return loaded, nil
}

// Flush writes every changed strategy in one transaction and returns how
// many rows were written.
func (p *Persister) Flush(ctx context.Context) (int, error) {
	if p == nil || p.Repo == nil || p.Directory == nil {
		return 0, nil
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	var (
		rows     []models.Strategy
		versions = map[string]uint64{}
	)
	for _, s := range p.Directory.All() {
		snap := s.Snapshot()
		if p.isFlushed(s.Key(), snap.Version) {
			continue
		}
		row, err := rowFromStrategy(snap, s.APICalls())
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", s.Key(), err)
		}
		rows = append(rows, row)
		versions[s.Key()] = snap.Version
	}
	if len(rows) == 0 {
		return 0, nil
	}
	err := p.Repo.InTx(ctx, func(tx *gorm.DB) error {
		return p.Repo.UpsertStrategiesTx(ctx, tx, rows)
	})
	if err != nil {
		return 0, err
	}
	for key, v := range versions {
		p.markFlushed(key, v)
	}
	if p.Logger != nil {
		p.Logger.Debug("strategies flushed", zap.Int("count", len(rows)))
	}
	return len(rows), nil
}

// Save writes one strategy immediately.
func (p *Persister) Save(ctx context.Context, s *strategy.Strategy) error {
	if p == nil || p.Repo == nil || s == nil {
		return nil
	}
	snap := s.Snapshot()
	row, err := rowFromStrategy(snap, s.APICalls())
	if err != nil {
		return err
	}
	if err := p.Repo.UpsertStrategy(ctx, &row); err != nil {
		return err
	}
	p.markFlushed(s.Key(), snap.Version)
	return nil
}

func (p *Persister) Delete(ctx context.Context, owner, name string) error {
	if p == nil {
		return nil
	}
	owner, name = normalizeKey(owner), normalizeKey(name)
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.mu.Lock()
	delete(p.flushed, owner+"/"+name)
	p.mu.Unlock()
	if p.Repo == nil {
		return nil
	}
	return p.Repo.DeleteStrategy(ctx, owner, name)
}

// Exclusive runs fn with flushes held off.
func (p *Persister) Exclusive(fn func() error) error {
	if p == nil {
		return fn()
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return fn()
}

// ForgetOwner drops flush bookkeeping for an owner whose rows were deleted.
func (p *Persister) ForgetOwner(owner string) {
	if p == nil {
		return
	}
	prefix := normalizeKey(owner) + "/"
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.flushed {
		if strings.HasPrefix(key, prefix) {
			delete(p.flushed, key)
		}
	}
}

func (p *Persister) isFlushed(key string, version uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.flushed[key]
	return ok && v == version
}

func (p *Persister) markFlushed(key string, version uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flushed == nil {
		p.flushed = map[string]uint64{}
	}
	p.flushed[key] = version
}

func rowFromStrategy(snap strategy.Snapshot, calls []strategy.APICall) (models.Strategy, error) {
	if calls == nil {
		calls = []strategy.APICall{}
	}
	raw, err := json.Marshal(calls)
	if err != nil {
		return models.Strategy{}, err
	}
	return models.Strategy{
		Owner:           snap.Owner,
		Name:            snap.Name,
		LongSymbol:      snap.LongSymbol,
		ShortSymbol:     snap.ShortSymbol,
		CashBalance:     snap.CashBalance,
		InCooldown:      snap.InCooldown,
		CooldownEndTime: snap.CooldownEndTime,
		APICalls:        datatypes.JSON(raw),
		CreatedAt:       snap.CreatedAt,
		UpdatedAt:       snap.UpdatedAt,
	}, nil
}

func strategyFromRow(row models.Strategy) (*strategy.Strategy, error) {
	var calls []strategy.APICall
	if len(row.APICalls) > 0 {
		if err := json.Unmarshal(row.APICalls, &calls); err != nil {
			return nil, err
		}
	}
	return strategy.Restore(strategy.Snapshot{
		Name:            row.Name,
		Owner:           row.Owner,
		LongSymbol:      row.LongSymbol,
		ShortSymbol:     row.ShortSymbol,
		CashBalance:     row.CashBalance,
		InCooldown:      row.InCooldown,
		CooldownEndTime: row.CooldownEndTime,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}, calls)
}

func normalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
