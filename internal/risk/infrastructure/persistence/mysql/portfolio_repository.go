package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/portfoliorisk/internal/risk/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PortfolioRepository 基于 GORM 的组合仓储
type PortfolioRepository struct {
	db *gorm.DB
}

// NewPortfolioRepository 创建组合仓储
func NewPortfolioRepository(db *gorm.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// GetPortfolio 读取组合及其持仓、净值序列，不存在时返回 domain.ErrPortfolioNotFound
func (r *PortfolioRepository) GetPortfolio(ctx context.Context, portfolioID string) (*domain.Portfolio, error) {
	var model PortfolioModel
	err := r.db.WithContext(ctx).
		Preload("Positions", func(db *gorm.DB) *gorm.DB { return db.Order("symbol") }).
		Preload("NAVHistory", func(db *gorm.DB) *gorm.DB { return db.Order("at") }).
		Where("id = ?", portfolioID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, err
	}
	return toPortfolio(&model), nil
}

// SavePortfolio 整体覆盖保存组合，持仓与净值序列先删后插
func (r *PortfolioRepository) SavePortfolio(ctx context.Context, p *domain.Portfolio) error {
	model := toPortfolioModel(p)
	if model == nil {
		return nil
	}
	positions, nav := model.Positions, model.NAVHistory
	model.Positions, model.NAVHistory = nil, nil

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error; err != nil {
			return fmt.Errorf("save portfolio: %w", err)
		}
		if err := tx.Where("portfolio_id = ?", p.ID).Delete(&PositionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("portfolio_id = ?", p.ID).Delete(&NAVPointModel{}).Error; err != nil {
			return err
		}
		if len(positions) > 0 {
			if err := tx.Create(&positions).Error; err != nil {
				return fmt.Errorf("save positions: %w", err)
			}
		}
		if len(nav) > 0 {
			if err := tx.CreateInBatches(&nav, 500).Error; err != nil {
				return fmt.Errorf("save nav history: %w", err)
			}
		}
		return nil
	})
}
