package accessory

import "errors"

// Database and value errors.
var (
	// ErrNoMatch is returned when a search matches no characteristic.
	ErrNoMatch = errors.New("accessory: no characteristic matched")

	// ErrValueType is returned when a value cannot be coerced to the
	// requested type.
	ErrValueType = errors.New("accessory: unexpected value type")
)
