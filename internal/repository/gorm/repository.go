package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradehook/internal/models"
	"tradehook/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- strategies -------------------------------------------------------------

var strategyUpsertColumns = []string{
	"long_symbol",
	"short_symbol",
	"cash_balance",
	"in_cooldown",
	"cooldown_end_time",
	"api_calls",
	"updated_at",
}

func (s *Store) UpsertStrategy(ctx context.Context, item *models.Strategy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Owner) == "" || strings.TrimSpace(item.Name) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns(strategyUpsertColumns),
	}).Create(item).Error
}

func (s *Store) UpsertStrategiesTx(ctx context.Context, tx *gorm.DB, items []models.Strategy) error {
	if len(items) == 0 {
		return nil
	}
	db := tx
	if db == nil {
		db = s.db
	}
	if db == nil {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns(strategyUpsertColumns),
	}).CreateInBatches(&items, 100).Error
}

func (s *Store) GetStrategy(ctx context.Context, owner, name string) (*models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	owner, name = normalizeKey(owner), normalizeKey(name)
	if owner == "" || name == "" {
		return nil, nil
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).Model(&models.Strategy{}).
		Where("owner = ? AND name = ?", owner, name).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Strategy{})
	if params.Owner != nil && strings.TrimSpace(*params.Owner) != "" {
		query = query.Where("owner = ?", normalizeKey(*params.Owner))
	}
	var items []models.Strategy
	if err := query.Order("owner asc, created_at asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteStrategy(ctx context.Context, owner, name string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("owner = ? AND name = ?", normalizeKey(owner), normalizeKey(name)).
		Delete(&models.Strategy{}).Error
}

// --- owners -----------------------------------------------------------------

func (s *Store) UpsertOwner(ctx context.Context, item *models.Owner) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Username = normalizeKey(item.Username)
	if item.Username == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"broker_url", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) GetOwner(ctx context.Context, username string) (*models.Owner, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	username = normalizeKey(username)
	if username == "" {
		return nil, nil
	}
	var item models.Owner
	err := s.db.WithContext(ctx).Model(&models.Owner{}).Where("username = ?", username).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOwners(ctx context.Context) ([]models.Owner, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Owner
	if err := s.db.WithContext(ctx).Model(&models.Owner{}).Order("username asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteOwner(ctx context.Context, username string) error {
	if s == nil || s.db == nil {
		return nil
	}
	username = normalizeKey(username)
	return s.InTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("owner = ?", username).Delete(&models.Strategy{}).Error; err != nil {
			return err
		}
		return tx.Where("username = ?", username).Delete(&models.Owner{}).Error
	})
}

// --- executions -------------------------------------------------------------

func (s *Store) InsertExecution(ctx context.Context, item *models.Execution) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListExecutions(ctx context.Context, params repository.ListExecutionsParams) ([]models.Execution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.executionQuery(ctx, params), params.OrderBy, params.Asc, "created_at")
	var items []models.Execution
	if err := query.Limit(normalizeLimit(params.Limit, 50)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountExecutions(ctx context.Context, params repository.ListExecutionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.executionQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) executionQuery(ctx context.Context, params repository.ListExecutionsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Execution{})
	if params.Owner != nil && strings.TrimSpace(*params.Owner) != "" {
		query = query.Where("owner = ?", normalizeKey(*params.Owner))
	}
	if params.Strategy != nil && strings.TrimSpace(*params.Strategy) != "" {
		query = query.Where("strategy = ?", normalizeKey(*params.Strategy))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	return query
}

var executionOrderColumns = map[string]struct{}{
	"created_at": {},
	"status":     {},
	"strategy":   {},
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if _, ok := executionOrderColumns[column]; !ok {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
