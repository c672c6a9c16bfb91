package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Business failures. They are expected, carry a user-displayable message and
// never leave a card partially mutated.
var (
	// ErrInsufficientFunds is returned when a hold exceeds the amount remaining on a card.
	ErrInsufficientFunds = errors.New("gift card has insufficient funds")
	// ErrInsufficientAuthorizedAmount is returned when a capture exceeds the held amount.
	ErrInsufficientAuthorizedAmount = errors.New("gift card has insufficient authorized amount")
	// ErrUnresolvedAuthorization is returned when no authorize entry matches the code.
	ErrUnresolvedAuthorization = errors.New("unable to find authorization for gift card")
	// ErrUnresolvedCapture is returned when no capture can back the requested credit.
	ErrUnresolvedCapture = errors.New("unable to find capture for gift card")
	// ErrAlreadyRedeemed is returned when redeeming a card with no value left.
	ErrAlreadyRedeemed = errors.New("this card has already been redeemed")
	// ErrUnauthorized is returned when a redemption fails the policy, identity or order checks.
	ErrUnauthorized = errors.New("you are not authorized to perform this action")
)

// Lookup and input failures.
var (
	// ErrGiftCardNotFound is returned when a card cannot be located.
	ErrGiftCardNotFound = errors.New("gift card not found")
	// ErrOrderNotFound is returned when an order cannot be located.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUserNotFound is returned when a user cannot be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrVariantNotFound is returned when the variant a card is issued for cannot be located.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrInvalidAmount is returned when amount is negative or not representable.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidCode is returned when a redemption code is malformed.
	ErrInvalidCode = errors.New("invalid gift card code")
	// ErrGiftCardInactive is returned when operating on a deactivated card.
	ErrGiftCardInactive = errors.New("gift card is not active")
	// ErrInvalidQuantity is returned when a gift card line item has quantity above one.
	ErrInvalidQuantity = errors.New("gift card line items cannot have quantity greater than one")
)

// Fatal failures. Callers must not treat these as declines.
var (
	// ErrDebitExceedsBalance is returned when a direct debit is larger than the amount remaining.
	ErrDebitExceedsBalance = errors.New("cannot debit gift card by amount greater than current value")
	// ErrCodeSpaceExhausted is returned when no unique code could be generated.
	ErrCodeSpaceExhausted = errors.New("unable to generate a unique gift card code")
	// ErrRedemptionFailed is returned when the store credit grant could not be committed.
	ErrRedemptionFailed = errors.New("there was an issue while redeeming the gift card")
)

// InsufficientFundsError carries the figures behind an ErrInsufficientFunds failure.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%s: available %s, requested %s",
		ErrInsufficientFunds.Error(), e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

var businessErrors = []error{
	ErrInsufficientFunds,
	ErrInsufficientAuthorizedAmount,
	ErrUnresolvedAuthorization,
	ErrUnresolvedCapture,
	ErrAlreadyRedeemed,
	ErrUnauthorized,
}

// IsBusiness reports whether err is an expected, recoverable ledger failure.
func IsBusiness(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Code maps domain errors to stable machine-readable codes.
func Code(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrInsufficientAuthorizedAmount):
		return "INSUFFICIENT_AUTHORIZED_AMOUNT"
	case errors.Is(err, ErrUnresolvedAuthorization):
		return "UNRESOLVED_AUTHORIZATION"
	case errors.Is(err, ErrUnresolvedCapture):
		return "UNRESOLVED_CAPTURE"
	case errors.Is(err, ErrAlreadyRedeemed):
		return "ALREADY_REDEEMED"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrGiftCardNotFound):
		return "GIFT_CARD_NOT_FOUND"
	case errors.Is(err, ErrOrderNotFound):
		return "ORDER_NOT_FOUND"
	case errors.Is(err, ErrUserNotFound):
		return "USER_NOT_FOUND"
	case errors.Is(err, ErrVariantNotFound):
		return "VARIANT_NOT_FOUND"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInvalidCode):
		return "INVALID_CODE"
	case errors.Is(err, ErrGiftCardInactive):
		return "GIFT_CARD_INACTIVE"
	case errors.Is(err, ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, ErrDebitExceedsBalance):
		return "DEBIT_EXCEEDS_BALANCE"
	case errors.Is(err, ErrCodeSpaceExhausted):
		return "CODE_SPACE_EXHAUSTED"
	case errors.Is(err, ErrRedemptionFailed):
		return "REDEMPTION_FAILED"
	default:
		return "INTERNAL_ERROR"
	}
}
