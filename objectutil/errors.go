package objectutil

import "errors"

// errNonFiniteNumber is wrapped by callers into the gasdb InvalidDocument kind.
var errNonFiniteNumber = errors.New("objectutil: NaN and ±Infinity are not permitted in stored documents")

// ErrNonFiniteNumber is the exported sentinel callers can match against with errors.Is.
var ErrNonFiniteNumber = errNonFiniteNumber
