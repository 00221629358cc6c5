package scenario

import "errors"

var (
	ErrUnknownScenario  = errors.New("unknown scenario type")
	ErrInvalidStartDate = errors.New("start date must not be before 2000-01-01")
	ErrClockNotReady    = errors.New("test clock did not finish advancing")

	ErrFailedToRunScenario = errors.New("failed to run scenario")
)
