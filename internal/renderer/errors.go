package renderer

import "errors"

var (
	ErrBrowser     = errors.New("browser unavailable")
	ErrNavigate    = errors.New("navigation failed")
	ErrWaitTimeout = errors.New("timeout waiting for page event")
	ErrHardTimeout = errors.New("render deadline exceeded")
	ErrExtractHTML = errors.New("failed to extract HTML")
)
