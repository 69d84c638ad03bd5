package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"

	"gorm.io/gorm"
)

type WebhookEventGormRepository struct {
	db *gorm.DB
}

func NewWebhookEventGormRepository(db *gorm.DB) *WebhookEventGormRepository {
	return &WebhookEventGormRepository{db: db}
}

func (r *WebhookEventGormRepository) FindByProviderEventID(ctx context.Context, provider string, eventID string) (model.WebhookEvent, bool, error) {
	var ev model.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		First(&ev).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WebhookEvent{}, false, nil
	}
	if err != nil {
		return model.WebhookEvent{}, false, err
	}
	return ev, true, nil
}

func (r *WebhookEventGormRepository) Create(ctx context.Context, ev model.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(&ev).Error
}
