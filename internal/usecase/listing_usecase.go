package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

type ListingUsecase struct {
	listingRepo repo.ListingRepository
}

// DI
func NewListingUsecase(listingRepo repo.ListingRepository) *ListingUsecase {
	return &ListingUsecase{listingRepo: listingRepo}
}

// GET /listingsの入力DTO
type ListListingsInput struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *int64
	MaxPrice *int64
	Sort     string
}

type ListingListOutput struct {
	Items []model.Listing `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ListingUsecase) ListPublicListings(ctx context.Context, in ListListingsInput) (ListingListOutput, error) {
	if in.Page < 1 {
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Q) > 100 {
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "q too long")
	}
	if in.MinPrice != nil && *in.MinPrice < 0 {
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "min_price must be >= 0")
	}
	if in.MaxPrice != nil && *in.MaxPrice < 0 {
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && *in.MinPrice > *in.MaxPrice {
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "min_price must be <= max_price")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort")
	}

	items, total, err := u.listingRepo.ListPublic(ctx, repo.ListingListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	})
	if err != nil {
		return ListingListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ListingListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

// 自分の出品一覧。SOLD/REMOVEDも含めて返す。
func (u *ListingUsecase) ListMyListings(ctx context.Context, sellerID int64, page int, limit int) (ListingListOutput, error) {
	if sellerID <= 0 {
		return ListingListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	items, total, err := u.listingRepo.ListBySellerID(ctx, sellerID, page, limit)
	if err != nil {
		return ListingListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ListingListOutput{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

func (u *ListingUsecase) GetListingDetail(ctx context.Context, listingID int64) (model.Listing, error) {
	if listingID <= 0 {
		return model.Listing{}, NewHTTPError(http.StatusBadRequest, "invalid listing id")
	}

	l, err := u.listingRepo.FindByID(ctx, listingID)
	if err == repo.ErrNotFound {
		return model.Listing{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Listing{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//取下げ済みは見せない
	if l.Status == model.ListingStatusRemoved {
		return model.Listing{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return l, nil
}

type CreateListingInput struct {
	Title       string
	Description string
	PriceCents  int64
}

func (u *ListingUsecase) CreateListing(ctx context.Context, sellerID int64, in CreateListingInput) (int64, error) {
	if sellerID <= 0 {
		return 0, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.Title) == "" {
		return 0, NewHTTPError(http.StatusBadRequest, "title required")
	}
	if in.PriceCents <= 0 {
		return 0, NewHTTPError(http.StatusBadRequest, "price must be > 0")
	}

	now := time.Now()
	l, err := u.listingRepo.Create(ctx, model.Listing{
		SellerID:    sellerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Status:      model.ListingStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return 0, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return l.ID, nil
}

func (u *ListingUsecase) UpdateListing(ctx context.Context, sellerID int64, listingID int64, in CreateListingInput) error {
	if sellerID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if listingID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid listing id")
	}
	if strings.TrimSpace(in.Title) == "" {
		return NewHTTPError(http.StatusBadRequest, "title required")
	}
	if in.PriceCents <= 0 {
		return NewHTTPError(http.StatusBadRequest, "price must be > 0")
	}

	l, err := u.listingRepo.FindByID(ctx, listingID)
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//他人の出品は触れない
	if l.SellerID != sellerID {
		return NewHTTPError(http.StatusForbidden, "forbidden")
	}
	//売れた後は価格を変えられない（入金済み金額とずれるため）
	if l.Status == model.ListingStatusSold {
		return NewHTTPError(http.StatusBadRequest, "cannot update sold listing")
	}

	l.Title = strings.TrimSpace(in.Title)
	l.Description = in.Description
	l.PriceCents = in.PriceCents
	l.UpdatedAt = time.Now()

	if err := u.listingRepo.Update(ctx, l); err != nil {
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *ListingUsecase) RemoveListing(ctx context.Context, sellerID int64, listingID int64) error {
	if sellerID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if listingID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid listing id")
	}

	l, err := u.listingRepo.FindByID(ctx, listingID)
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if l.SellerID != sellerID {
		return NewHTTPError(http.StatusForbidden, "forbidden")
	}
	if l.Status == model.ListingStatusSold {
		return NewHTTPError(http.StatusBadRequest, "cannot remove sold listing")
	}

	if err := u.listingRepo.SoftDelete(ctx, listingID); err != nil {
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}
