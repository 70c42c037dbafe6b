package enums

import "fmt"

// CouponRejectionReason explains why a coupon code could not be applied.
// Values are listed in the order the checks are evaluated.
type CouponRejectionReason string

const (
	CouponNotFound      CouponRejectionReason = "not_found"
	CouponInactive      CouponRejectionReason = "inactive"
	CouponExpired       CouponRejectionReason = "expired"
	CouponLimitReached  CouponRejectionReason = "limit_reached"
	CouponMinimumNotMet CouponRejectionReason = "minimum_not_met"
)

var validCouponRejectionReasons = []CouponRejectionReason{
	CouponNotFound,
	CouponInactive,
	CouponExpired,
	CouponLimitReached,
	CouponMinimumNotMet,
}

// String implements fmt.Stringer.
func (r CouponRejectionReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known rejection reason.
func (r CouponRejectionReason) IsValid() bool {
	for _, candidate := range validCouponRejectionReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseCouponRejectionReason converts raw input into a CouponRejectionReason.
func ParseCouponRejectionReason(value string) (CouponRejectionReason, error) {
	for _, candidate := range validCouponRejectionReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid coupon rejection reason %q", value)
}
