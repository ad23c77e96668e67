package domain

import "errors"

// Sentinel errors, grouped by rejection category. Every precondition failure
// in the engine maps to exactly one of these so callers and tests can tell
// rejection paths apart.
var (
	ErrNotFound = errors.New("not found")

	// Input validation.
	ErrInvalidAmount   = errors.New("stake amount must be positive")
	ErrInvalidOutcome  = errors.New("invalid outcome index")
	ErrEmptyQuestion   = errors.New("market question must not be empty")
	ErrInvalidSchedule = errors.New("resolution time must not precede end time")
	ErrZeroAddress     = errors.New("address must not be zero")
	ErrFeeCapExceeded  = errors.New("combined fee rate exceeds cap")

	// Authorization.
	ErrNotResolver  = errors.New("caller is not the market resolver")
	ErrNotCreator   = errors.New("caller is not the market creator")
	ErrNotPlatform  = errors.New("caller is not the registered platform")
	ErrCreatorStake = errors.New("market creator may not stake")

	// Temporal.
	ErrBettingClosed   = errors.New("betting window has closed")
	ErrResolutionEarly = errors.New("resolution time has not been reached")
	ErrDelayNotElapsed = errors.New("dispute delay has not elapsed")

	// State mismatch.
	ErrMarketNotActive    = errors.New("market is not accepting stakes")
	ErrMarketNotProposed  = errors.New("market has no pending resolution")
	ErrMarketNotResolved  = errors.New("market is not resolved")
	ErrMarketNotRefunding = errors.New("market is not refunding")
	ErrResolutionPending  = errors.New("a resolution has already been proposed")

	// Economic invariants.
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrNothingToClaim = errors.New("nothing to claim")
	ErrReversalLimit  = errors.New("reversal limit reached")
	ErrSameOutcome    = errors.New("new outcome equals current outcome")

	// Factory.
	ErrCreationPaused = errors.New("market creation is paused")

	// Coordination.
	ErrLockHeld = errors.New("lock already held")

	// External escrow.
	ErrEscrowTransfer    = errors.New("escrow transfer failed")
	ErrInsufficientFunds = errors.New("insufficient escrow balance")
)
