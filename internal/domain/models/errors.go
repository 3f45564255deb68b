package models

import (
	"errors"
	"fmt"
)

// Failure classes the pipeline and read paths tell apart.
var (
	ErrAcquisition      = errors.New("acquisition failed")
	ErrPersistence      = errors.New("persistence failed")
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// QualityRejectedError reports a sample refused by the quality gate.
type QualityRejectedError struct {
	Symbol string
	Score  float64
}

func (e *QualityRejectedError) Error() string {
	return fmt.Sprintf("quality rejected: %s scored %.3f", e.Symbol, e.Score)
}

// IsQualityRejected reports whether err carries a quality rejection.
func IsQualityRejected(err error) bool {
	var qe *QualityRejectedError
	return errors.As(err, &qe)
}
