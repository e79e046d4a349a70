package service

import (
	"context"

	"go.uber.org/zap"

	"tradehook/internal/engine"
	"tradehook/internal/models"
	"tradehook/internal/repository"
	"tradehook/internal/strategy"
)

// Journal stores one row per handled signal. Without a repository it is a
// no-op and List returns nothing.
type Journal struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (j *Journal) Record(ctx context.Context, res engine.Result, force bool, s *strategy.Strategy) {
	if j == nil || j.Repo == nil || res.ExecutionID == "" {
		return
	}
	row := &models.Execution{
		ExecutionID: res.ExecutionID,
		Owner:       res.Owner,
		Strategy:    res.Strategy,
		Signal:      res.Signal,
		Force:       force,
		Status:      string(res.Status),
		Detail:      res.Detail,
		Reason:      res.Reason,
	}
	if s != nil {
		row.CashBalance = s.CashBalance()
	}
	if err := j.Repo.InsertExecution(ctx, row); err != nil && j.Logger != nil {
		j.Logger.Warn("execution journal insert failed",
			zap.String("execution_id", res.ExecutionID),
			zap.Error(err),
		)
	}
}

func (j *Journal) List(ctx context.Context, owner, name string, limit, offset int) ([]models.Execution, int64, error) {
	if j == nil || j.Repo == nil {
		return []models.Execution{}, 0, nil
	}
	owner, name = normalizeKey(owner), normalizeKey(name)
	params := repository.ListExecutionsParams{
		Owner:    &owner,
		Strategy: &name,
		Limit:    limit,
		Offset:   offset,
	}
	items, err := j.Repo.ListExecutions(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := j.Repo.CountExecutions(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
