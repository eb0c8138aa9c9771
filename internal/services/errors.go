package services

import "errors"

var (
	ErrMarketNotFound        = errors.New("market not found")
	ErrMarketNotOpen         = errors.New("market is not open for betting")
	ErrMarketClosed          = errors.New("market is closed")
	ErrOutcomeNotFound       = errors.New("outcome not found in market")
	ErrStakeBelowMinimum     = errors.New("stake is below the market minimum")
	ErrStakeAboveMaximum     = errors.New("stake is above the market maximum")
	ErrInvalidStake          = errors.New("stake must be positive with at most two decimal places")
	ErrInvalidMarket         = errors.New("invalid market definition")
	ErrInvalidBettor         = errors.New("bettor id is required")
	ErrMarketAlreadyResolved = errors.New("market already resolved")
	ErrMarketNotClosed       = errors.New("market is not closed yet")
	ErrNoBetsPlaced          = errors.New("no bets placed on market")
	ErrBetAlreadySettled     = errors.New("bet already settled")
	ErrSettlementNotFound    = errors.New("settlement not found")
)

// IsNotFound reports whether err refers to a missing market or settlement.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMarketNotFound) || errors.Is(err, ErrSettlementNotFound)
}

// IsValidation reports whether err is a caller-fixable input error.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrOutcomeNotFound,
		ErrStakeBelowMinimum,
		ErrStakeAboveMaximum,
		ErrInvalidStake,
		ErrInvalidMarket,
		ErrInvalidBettor,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err comes from the market being in the wrong
// state for the operation.
func IsConflict(err error) bool {
	for _, target := range []error{
		ErrMarketNotOpen,
		ErrMarketClosed,
		ErrMarketAlreadyResolved,
		ErrMarketNotClosed,
		ErrNoBetsPlaced,
		ErrBetAlreadySettled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
