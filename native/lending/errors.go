package lending

import (
	"errors"

	"lendhub/native/common"
	"lendhub/native/oracle"
)

// Validation errors.
var (
	ErrInvalidAmount      = errors.New("lending: amount must be positive")
	ErrZeroAddress        = errors.New("lending: zero address")
	ErrAssetNotRegistered = errors.New("lending: asset not registered")
	ErrAssetRegistered    = errors.New("lending: asset already registered")
	ErrNotMarketMember    = errors.New("lending: account is not an active market member")
	ErrAssetMismatch      = errors.New("lending: payment asset does not match")
	ErrCollectionUnknown  = errors.New("lending: collection not registered")
	ErrNotTokenOwner      = errors.New("lending: caller does not own token")
	ErrPositionsNotEmpty  = errors.New("lending: account still holds positions")
	ErrPositionNotFound   = errors.New("lending: position not found")
	ErrSameAsset          = errors.New("lending: collateral and borrow asset are the same")
	ErrInvalidParameter   = errors.New("lending: invalid parameter")
)

// Insufficient-resource errors.
var (
	ErrInsufficientLiquidity  = errors.New("lending: insufficient liquidity")
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral")
	ErrInsufficientBalance    = errors.New("lending: insufficient balance")
)

// Access-control errors.
var (
	ErrUnauthorized = errors.New("lending: unauthorized caller")
	ErrNotOperator  = errors.New("lending: caller is not the protocol operator")
	ErrPaused       = common.ErrModulePaused
)

// Oracle errors.
var (
	ErrPriceUnavailable = oracle.ErrPriceUnavailable
)

// Configuration errors.
var (
	ErrRateModelMisconfigured = errors.New("lending: rate model misconfigured")
	ErrThresholdTooHigh       = errors.New("lending: liquidation threshold exceeds protocol maximum")
)

// Liquidation outcome errors.
var (
	ErrNotLiquidatable = errors.New("lending: account is not eligible for liquidation")
	ErrPaymentTooSmall = errors.New("lending: liquidation payment does not cover required debt share")
	ErrNoDebtInAsset   = errors.New("lending: account has no debt in the seized asset")
)
