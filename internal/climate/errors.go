package climate

import "errors"

// ErrUnknownValue is returned when a user-supplied canonical value is not
// part of the vocabulary.
var ErrUnknownValue = errors.New("climate: unknown value")
