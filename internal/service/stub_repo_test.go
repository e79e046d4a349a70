package service

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"tradehook/internal/models"
	"tradehook/internal/repository"
)

// stubRepo keeps rows in maps. Only the methods the services call do work.
type stubRepo struct {
	mu         sync.Mutex
	strategies map[string]models.Strategy
	owners     map[string]models.Owner
	executions []models.Execution
	upserts    int
	failTx     bool

	// beforeBatch runs at the start of each batched upsert.
	beforeBatch func()
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		strategies: map[string]models.Strategy{},
		owners:     map[string]models.Owner{},
	}
}

var _ repository.Repository = (*stubRepo)(nil)

func (r *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.failTx {
		return errors.New("tx failed")
	}
	return fn(nil)
}

func (r *stubRepo) UpsertStrategy(ctx context.Context, item *models.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[item.Owner+"/"+item.Name] = *item
	r.upserts++
	return nil
}

func (r *stubRepo) UpsertStrategiesTx(ctx context.Context, tx *gorm.DB, items []models.Strategy) error {
	if r.beforeBatch != nil {
		r.beforeBatch()
	}
	for i := range items {
		if err := r.UpsertStrategy(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *stubRepo) GetStrategy(ctx context.Context, owner, name string) (*models.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.strategies[owner+"/"+name]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (r *stubRepo) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Strategy, 0, len(r.strategies))
	for _, item := range r.strategies {
		if params.Owner != nil && item.Owner != *params.Owner {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *stubRepo) DeleteStrategy(ctx context.Context, owner, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.strategies, owner+"/"+name)
	return nil
}

func (r *stubRepo) UpsertOwner(ctx context.Context, item *models.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[item.Username] = *item
	return nil
}

func (r *stubRepo) GetOwner(ctx context.Context, username string) (*models.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.owners[username]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (r *stubRepo) ListOwners(ctx context.Context) ([]models.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Owner, 0, len(r.owners))
	for _, item := range r.owners {
		out = append(out, item)
	}
	return out, nil
}

func (r *stubRepo) DeleteOwner(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, username)
	for k, item := range r.strategies {
		if item.Owner == username {
			delete(r.strategies, k)
		}
	}
	return nil
}

func (r *stubRepo) InsertExecution(ctx context.Context, item *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions = append(r.executions, *item)
	return nil
}

func (r *stubRepo) ListExecutions(ctx context.Context, params repository.ListExecutionsParams) ([]models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Execution
	for _, item := range r.executions {
		if params.Owner != nil && item.Owner != *params.Owner {
			continue
		}
		if params.Strategy != nil && item.Strategy != *params.Strategy {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *stubRepo) CountExecutions(ctx context.Context, params repository.ListExecutionsParams) (int64, error) {
	items, err := r.ListExecutions(ctx, params)
	return int64(len(items)), err
}
