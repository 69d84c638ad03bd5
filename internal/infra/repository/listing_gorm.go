package repository

import (
	"context"
	"errors"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/gorm"
)

type ListingGormRepository struct {
	db *gorm.DB
}

func NewListingGormRepository(db *gorm.DB) *ListingGormRepository {
	return &ListingGormRepository{db: db}
}

func (r *ListingGormRepository) ListPublic(ctx context.Context, q repo.ListingListQuery) ([]model.Listing, int64, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}

	//公開一覧はACTIVEだけ
	query := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("status = ?", model.ListingStatusActive)

	if q.Q != "" {
		query = query.Where("title ILIKE ?", "%"+q.Q+"%")
	}
	if q.MinPrice != nil {
		query = query.Where("price_cents >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		query = query.Where("price_cents <= ?", *q.MaxPrice)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return []model.Listing{}, 0, err
	}

	switch q.Sort {
	case "price_asc":
		query = query.Order("price_cents asc")
	case "price_desc":
		query = query.Order("price_cents desc")
	default:
		query = query.Order("id desc")
	}

	var items []model.Listing
	offset := (q.Page - 1) * q.Limit
	if err := query.Limit(q.Limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Listing{}, 0, err
	}

	return items, total, nil
}

func (r *ListingGormRepository) ListBySellerID(ctx context.Context, sellerID int64, page int, limit int) ([]model.Listing, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("seller_id = ?", sellerID).
		Count(&total).Error; err != nil {
		return []model.Listing{}, 0, err
	}

	var items []model.Listing
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Listing{}, 0, err
	}

	return items, total, nil
}

func (r *ListingGormRepository) FindByID(ctx context.Context, id int64) (model.Listing, error) {
	var l model.Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Listing{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Listing{}, err
	}
	return l, nil
}

func (r *ListingGormRepository) Create(ctx context.Context, l model.Listing) (model.Listing, error) {
	if err := r.db.WithContext(ctx).Create(&l).Error; err != nil {
		return model.Listing{}, err
	}
	return l, nil
}

func (r *ListingGormRepository) Update(ctx context.Context, l model.Listing) error {
	res := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("id = ?", l.ID).
		Updates(map[string]interface{}{
			"title":       l.Title,
			"description": l.Description,
			"price_cents": l.PriceCents,
			"updated_at":  l.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *ListingGormRepository) SoftDelete(ctx context.Context, id int64) error {
	//REMOVEDにしてから論理削除
	res := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("id = ?", id).
		Update("status", model.ListingStatusRemoved)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}

	return r.db.WithContext(ctx).Delete(&model.Listing{}, id).Error
}

// ACTIVEのときだけSOLDへ（在庫減算と同じcheck-and-set）
func (r *ListingGormRepository) MarkSoldIfActive(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("id = ? AND status = ?", id, model.ListingStatusActive).
		Updates(map[string]interface{}{
			"status":     model.ListingStatusSold,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ListingGormRepository) Reactivate(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("id = ? AND status = ?", id, model.ListingStatusSold).
		Updates(map[string]interface{}{
			"status":     model.ListingStatusActive,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
