package ml

import "errors"

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrUnsupportedKind   = errors.New("unsupported artifact kind")
	ErrCorruptArtifact   = errors.New("corrupt artifact")
)
