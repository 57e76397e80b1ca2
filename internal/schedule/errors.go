package schedule

import "errors"

var (
	ErrInvalidTimestamp   = errors.New("invalid timestamp")
	ErrInvalidRange       = errors.New("invalid hour range")
	ErrInvalidDay         = errors.New("invalid day")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
