package repository

import (
	"context"

	"app/internal/domain/model"
)

// webhookイベントの記録（重複排除の土台）。
type WebhookEventRepository interface {
	//プロバイダ+イベントIDで1件検索
	FindByProviderEventID(ctx context.Context, provider string, eventID string) (model.WebhookEvent, bool, error)

	//1件保存
	Create(ctx context.Context, ev model.WebhookEvent) error
}
