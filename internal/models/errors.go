package models

import "errors"

// ErrMissingInput marks an absent upstream artifact (raw directory, chunk
// file, index, eval set). Commands report it with guidance instead of failing.
var ErrMissingInput = errors.New("missing input")
