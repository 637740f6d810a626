package cpu

import "errors"

var (
	ErrNoSceneData         = errors.New("cpu tracer: no scene data")
	ErrNoCamera            = errors.New("cpu tracer: no camera defined")
	ErrAlreadySetup        = errors.New("cpu tracer: already set up")
	ErrInvalidFrameDims    = errors.New("cpu tracer: invalid frame dimensions")
	ErrAccumBufferTooSmall = errors.New("cpu tracer: accumulation buffer too small")
	ErrTracerClosed        = errors.New("cpu tracer: tracer closed")
	ErrBlockOutOfBounds    = errors.New("cpu tracer: block exceeds frame bounds")
)
