package usecase

import "errors"

var (
	ErrFeeInvalidAmount      = errors.New("amount must be positive")
	ErrFeeInvalidBasisPoints = errors.New("fee basis points out of range")
)

// 手数料の分割。feeBasisPointsは1/100パーセント（800 = 8%）。
// 手数料を先にfloorで出して、残りを出品者に渡す。
// platformFee + sellerAmount == amount が常に成り立つ。
func ComputeSplit(amountCents int64, feeBasisPoints int) (platformFeeCents int64, sellerAmountCents int64, err error) {
	if amountCents <= 0 {
		return 0, 0, ErrFeeInvalidAmount
	}
	if feeBasisPoints < 0 || feeBasisPoints > 10000 {
		return 0, 0, ErrFeeInvalidBasisPoints
	}

	platformFeeCents = amountCents * int64(feeBasisPoints) / 10000
	sellerAmountCents = amountCents - platformFeeCents
	return platformFeeCents, sellerAmountCents, nil
}
