package rbac

import (
	"context"

	"app/internal/domain/model"
	"app/internal/repository"
)

type Capability string

const (
	CapReleaseFunds Capability = "orders.release"
	CapRefundOrder  Capability = "orders.refund"
	CapViewHeld     Capability = "orders.view_held"
	CapViewAudit    Capability = "audit.view"
)

// 「このユーザーにこの操作が許可されているか」だけを答える。
// usecaseは身元のロジックを持たず、これに聞く。
type Checker interface {
	HasCapability(ctx context.Context, actorID int64, cap Capability) (bool, error)
}

// ロール→capabilityの対応で判定する実装。
type RoleChecker struct {
	users  repository.UserRepository
	grants map[model.Role][]Capability
}

func NewRoleChecker(users repository.UserRepository) *RoleChecker {
	return &RoleChecker{
		users: users,
		grants: map[model.Role][]Capability{
			model.RoleAdmin: {CapReleaseFunds, CapRefundOrder, CapViewHeld, CapViewAudit},
		},
	}
}

func (c *RoleChecker) HasCapability(ctx context.Context, actorID int64, cap Capability) (bool, error) {
	if actorID <= 0 {
		return false, nil
	}

	user, err := c.users.FindByID(ctx, actorID)
	if err == repository.ErrUserNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if user == nil || !user.IsActive {
		return false, nil
	}

	for _, granted := range c.grants[user.Role] {
		if granted == cap {
			return true, nil
		}
	}
	return false, nil
}
