package repository

import (
	"context"

	"app/internal/domain/model"
)

// 一覧検索
type ListingListQuery struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *int64
	MaxPrice *int64
	Sort     string
}

// 出品の永続化（保存・取得）だけを約束。
type ListingRepository interface {
	ListPublic(ctx context.Context, q ListingListQuery) ([]model.Listing, int64, error)
	ListBySellerID(ctx context.Context, sellerID int64, page int, limit int) ([]model.Listing, int64, error)
	FindByID(ctx context.Context, id int64) (model.Listing, error)

	Create(ctx context.Context, l model.Listing) (model.Listing, error)
	Update(ctx context.Context, l model.Listing) error
	SoftDelete(ctx context.Context, id int64) error

	//ACTIVEのときだけSOLDへ（falseなら売り切れ済み・取下げ済み）
	MarkSoldIfActive(ctx context.Context, id int64) (bool, error)
	//返金・取消時にSOLDからACTIVEへ戻す
	Reactivate(ctx context.Context, id int64) (bool, error)
}
