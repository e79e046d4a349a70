package repository

import (
	"context"

	"gorm.io/gorm"

	"tradehook/internal/models"
)

type StrategyRepository interface {
	UpsertStrategy(ctx context.Context, item *models.Strategy) error
	UpsertStrategiesTx(ctx context.Context, tx *gorm.DB, items []models.Strategy) error
	GetStrategy(ctx context.Context, owner, name string) (*models.Strategy, error)
	ListStrategies(ctx context.Context, params ListStrategiesParams) ([]models.Strategy, error)
	DeleteStrategy(ctx context.Context, owner, name string) error
}

type OwnerRepository interface {
	UpsertOwner(ctx context.Context, item *models.Owner) error
	GetOwner(ctx context.Context, username string) (*models.Owner, error)
	ListOwners(ctx context.Context) ([]models.Owner, error)
	// DeleteOwner removes the owner and every strategy it holds.
	DeleteOwner(ctx context.Context, username string) error
}

type ExecutionRepository interface {
	InsertExecution(ctx context.Context, item *models.Execution) error
	ListExecutions(ctx context.Context, params ListExecutionsParams) ([]models.Execution, error)
	CountExecutions(ctx context.Context, params ListExecutionsParams) (int64, error)
}

// Repository is everything the service layer persists.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	StrategyRepository
	OwnerRepository
	ExecutionRepository
}

type ListStrategiesParams struct {
	Owner *string
}

type ListExecutionsParams struct {
	Owner    *string
	Strategy *string
	Status   *string
	Limit    int
	Offset   int
	OrderBy  string
	Asc      *bool
}
