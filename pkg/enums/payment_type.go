package enums

import "fmt"

// PaymentType distinguishes what a payment intent is for.
type PaymentType string

const (
	PaymentTypeDeposit            PaymentType = "deposit"
	PaymentTypeWithdrawal         PaymentType = "withdrawal"
	PaymentTypeProcurementPayment PaymentType = "procurement_payment"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeDeposit,
	PaymentTypeWithdrawal,
	PaymentTypeProcurementPayment,
}

// IsValid reports whether the value is a known PaymentType.
func (p PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentType converts raw input into a PaymentType.
func ParsePaymentType(value string) (PaymentType, error) {
	for _, candidate := range validPaymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}
