package service

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindUpstream      Kind = "upstream"
)

// Reason is the stable, user-facing name of a rejection.
type Reason string

const (
	ReasonInvalidInput             Reason = "InvalidInput"
	ReasonDeniedNoPlan             Reason = "DeniedNoPlan"
	ReasonDeniedPlanExpired        Reason = "DeniedPlanExpired"
	ReasonDeniedQuotaExhausted     Reason = "DeniedQuotaExhausted"
	ReasonDeniedPriceTooHigh       Reason = "DeniedPriceTooHigh"
	ReasonUploadNotAuthorized      Reason = "UploadNotAuthorized"
	ReasonAlreadyOwned             Reason = "AlreadyOwned"
	ReasonOwnListing               Reason = "OwnListing"
	ReasonNotPurchased             Reason = "NotPurchased"
	ReasonInvalidSignature         Reason = "InvalidSignature"
	ReasonOrderFailed              Reason = "OrderFailed"
	ReasonWrongRequester           Reason = "WrongRequester"
	ReasonListingNotFound          Reason = "ListingNotFound"
	ReasonPackNotFound             Reason = "PackNotFound"
	ReasonOrderNotFound            Reason = "OrderNotFound"
	ReasonAssetNotFound            Reason = "AssetNotFound"
	ReasonDecodeError              Reason = "DecodeError"
	ReasonStorageError             Reason = "StorageError"
	ReasonGatewayUnavailable       Reason = "GatewayUnavailable"
	ReasonConflictRetriesExhausted Reason = "ConflictRetriesExhausted"
	ReasonUnauthenticated          Reason = "Unauthenticated"
	ReasonPaymentUnsupported       Reason = "PaymentUnsupported"
	ReasonAmountMismatch           Reason = "AmountMismatch"
)

// Error is a rejection the caller can act on. Two Errors match with
// errors.Is when their reasons are equal.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

func newError(kind Kind, reason Reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

// Sentinels for errors.Is. Returned errors are fresh values carrying the
// same reason and possibly a cause.
var (
	ErrInvalidInput             = newError(KindValidation, ReasonInvalidInput, "invalid input")
	ErrDeniedNoPlan             = newError(KindAuthorization, ReasonDeniedNoPlan, "no seller plan, buy a pack first")
	ErrDeniedPlanExpired        = newError(KindAuthorization, ReasonDeniedPlanExpired, "seller plan has expired")
	ErrDeniedQuotaExhausted     = newError(KindAuthorization, ReasonDeniedQuotaExhausted, "upload quota exhausted for the current plan")
	ErrDeniedPriceTooHigh       = newError(KindAuthorization, ReasonDeniedPriceTooHigh, "price exceeds the plan's maximum per item")
	ErrUploadNotAuthorized      = newError(KindAuthorization, ReasonUploadNotAuthorized, "listing creation requires an upload authorization")
	ErrAlreadyOwned             = newError(KindConflict, ReasonAlreadyOwned, "you already own this photo")
	ErrOwnListing               = newError(KindValidation, ReasonOwnListing, "sellers cannot buy their own listing")
	ErrNotPurchased             = newError(KindAuthorization, ReasonNotPurchased, "purchase this photo to download the original")
	ErrInvalidSignature         = newError(KindAuthorization, ReasonInvalidSignature, "payment callback could not be verified")
	ErrOrderFailed              = newError(KindConflict, ReasonOrderFailed, "payment order has already failed")
	ErrWrongRequester           = newError(KindAuthorization, ReasonWrongRequester, "payment order belongs to another user")
	ErrListingNotFound          = newError(KindNotFound, ReasonListingNotFound, "listing not found")
	ErrPackNotFound             = newError(KindNotFound, ReasonPackNotFound, "pack not found")
	ErrOrderNotFound            = newError(KindNotFound, ReasonOrderNotFound, "payment order not found")
	ErrAssetNotFound            = newError(KindNotFound, ReasonAssetNotFound, "original asset not found")
	ErrDecode                   = newError(KindValidation, ReasonDecodeError, "image could not be decoded")
	ErrStorage                  = newError(KindUpstream, ReasonStorageError, "asset storage failed")
	ErrGatewayUnavailable       = newError(KindUpstream, ReasonGatewayUnavailable, "payment gateway unavailable, try again")
	ErrConflictRetriesExhausted = newError(KindConflict, ReasonConflictRetriesExhausted, "too many concurrent updates, try again")
	ErrUnauthenticated          = newError(KindAuthorization, ReasonUnauthenticated, "authentication required")
	ErrPaymentUnsupported       = newError(KindValidation, ReasonPaymentUnsupported, "this item cannot be bought with the configured payment provider")
	ErrAmountMismatch           = newError(KindConflict, ReasonAmountMismatch, "paid amount does not match the order, refund required")
)

// wrap returns a copy of sentinel carrying cause.
func wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Reason: sentinel.Reason, Message: sentinel.Message, Err: cause}
}

// ValidationError reports bad input before any side effect.
func ValidationError(message string) *Error {
	return newError(KindValidation, ReasonInvalidInput, message)
}

// AsError extracts the service error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
