package lending

import (
	"errors"
	"net/http"

	"lendhub/native/bank"
	nativelending "lendhub/native/lending"
)

// ErrUnauthenticated marks calls without a verified caller identity.
var ErrUnauthenticated = errors.New("lending service: authentication required")

// StatusFor maps an operation error to an HTTP status code and a stable,
// client-safe message.
func StatusFor(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, nativelending.ErrNotOperator):
		return http.StatusForbidden, "operator only"
	case errors.Is(err, nativelending.ErrUnauthorized),
		errors.Is(err, nativelending.ErrNotTokenOwner):
		return http.StatusForbidden, "caller not permitted"
	case errors.Is(err, nativelending.ErrPaused):
		return http.StatusServiceUnavailable, "action paused"
	case errors.Is(err, nativelending.ErrPriceUnavailable):
		return http.StatusServiceUnavailable, "price unavailable"
	case errors.Is(err, nativelending.ErrPositionNotFound),
		errors.Is(err, nativelending.ErrAssetNotRegistered),
		errors.Is(err, nativelending.ErrCollectionUnknown):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, nativelending.ErrAssetRegistered):
		return http.StatusConflict, "asset already registered"
	case errors.Is(err, nativelending.ErrPositionsNotEmpty):
		return http.StatusConflict, "account still holds positions"
	case errors.Is(err, nativelending.ErrInsufficientLiquidity):
		return http.StatusConflict, "insufficient liquidity"
	case errors.Is(err, nativelending.ErrInsufficientCollateral):
		return http.StatusUnprocessableEntity, "insufficient collateral"
	case errors.Is(err, nativelending.ErrInsufficientBalance),
		errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient balance"
	case errors.Is(err, nativelending.ErrNotLiquidatable):
		return http.StatusUnprocessableEntity, "account not liquidatable"
	case errors.Is(err, nativelending.ErrPaymentTooSmall):
		return http.StatusUnprocessableEntity, "payment too small"
	case errors.Is(err, nativelending.ErrNoDebtInAsset):
		return http.StatusUnprocessableEntity, "no debt in asset"
	case errors.Is(err, nativelending.ErrInvalidAmount),
		errors.Is(err, nativelending.ErrZeroAddress),
		errors.Is(err, nativelending.ErrNotMarketMember),
		errors.Is(err, nativelending.ErrAssetMismatch),
		errors.Is(err, nativelending.ErrSameAsset),
		errors.Is(err, nativelending.ErrInvalidParameter),
		errors.Is(err, nativelending.ErrThresholdTooHigh),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrInvalidAddress),
		errors.Is(err, bank.ErrInvalidAsset):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, nativelending.ErrRateModelMisconfigured):
		return http.StatusBadRequest, "rate model misconfigured"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
