package enums

import "fmt"

type FulfillmentMethod string

const (
	FulfillmentShipping FulfillmentMethod = "shipping"
	FulfillmentPickup   FulfillmentMethod = "pickup"
)

var validFulfillmentMethods = []FulfillmentMethod{
	FulfillmentShipping,
	FulfillmentPickup,
}

func (f FulfillmentMethod) String() string {
	return string(f)
}

func (f FulfillmentMethod) IsValid() bool {
	for _, candidate := range validFulfillmentMethods {
		if candidate == f {
			return true
		}
	}
	return false
}

func ParseFulfillmentMethod(value string) (FulfillmentMethod, error) {
	for _, candidate := range validFulfillmentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment method %q", value)
}
