package assessment

import "errors"

// Registry and schema errors.
var (
	ErrSchemaVersion      = errors.New("unsupported feature schema version")
	ErrDuplicatePredictor = errors.New("predictor already registered")
	ErrUnknownPredictor   = errors.New("unknown predictor")
	ErrUnknownFeature     = errors.New("unknown feature")
)
