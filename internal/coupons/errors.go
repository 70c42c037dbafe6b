package coupons

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var (
	// ErrRepositoryMissing indicates the coupon repository dependency is absent.
	ErrRepositoryMissing = errors.New("coupon service: repository is not configured")
	// ErrIncrementRejected means the conditional increment matched no row: the
	// coupon is missing, inactive or already at its usage limit.
	ErrIncrementRejected = errors.New("coupon service: usage increment rejected")
)

// RejectionError is returned by Validate when a coupon cannot be applied.
type RejectionError struct {
	Code   string
	Reason enums.CouponRejectionReason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Reason)
}

// IncrementError wraps a failed usage increment. It is never fatal to an
// order that has already been created.
type IncrementError struct {
	Code string
	Err  error
}

func (e *IncrementError) Error() string {
	return fmt.Sprintf("increment usage for coupon %q: %v", e.Code, e.Err)
}

func (e *IncrementError) Unwrap() error {
	return e.Err
}

// RejectionReason extracts the reason from err, if it is a RejectionError.
func RejectionReason(err error) (enums.CouponRejectionReason, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Reason, true
	}
	return "", false
}

var rejectionMessages = map[enums.CouponRejectionReason]string{
	enums.CouponNotFound:      "coupon code not found",
	enums.CouponInactive:      "coupon is not active",
	enums.CouponExpired:       "coupon has expired",
	enums.CouponLimitReached:  "coupon usage limit reached",
	enums.CouponMinimumNotMet: "order does not meet the coupon minimum",
}

// ToAPIError maps coupon errors onto the API error taxonomy.
func ToAPIError(err error) error {
	if err == nil {
		return nil
	}
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return pkgerrors.New(pkgerrors.CodeCouponInvalid, rejectionMessages[rejection.Reason]).
			WithDetails(map[string]any{"code": rejection.Code, "reason": rejection.Reason})
	}
	if errors.Is(err, ErrIncrementRejected) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "coupon usage could not be recorded")
	}
	var incErr *IncrementError
	if errors.As(err, &incErr) {
		return pkgerrors.Wrap(pkgerrors.CodeCouponIncrement, err, "coupon usage could not be recorded")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "coupon lookup failed")
}
