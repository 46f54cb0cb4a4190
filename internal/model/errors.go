package model

import "github.com/rotisserie/eris"

// Error kinds for the prediction core. Call sites wrap these with context
// via eris and callers classify with eris.Is.
var (
	// ErrData flags malformed or insufficient input: missing columns,
	// too few rows, non-positive divisors.
	ErrData = eris.New("invalid input data")

	// ErrNotFound flags a referenced file or model artifact that does not
	// exist. The wrapped message names the expected path.
	ErrNotFound = eris.New("not found")

	// ErrState flags an operation invoked before the required train or
	// load call.
	ErrState = eris.New("model not trained or loaded")

	// ErrInference flags input the trained model rejects, such as a wrong
	// feature-column set.
	ErrInference = eris.New("inference rejected input")
)
