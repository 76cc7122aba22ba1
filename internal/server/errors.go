package server

import "errors"

var (
	// ErrAlreadyTLS is returned when attempting to upgrade an already-TLS connection.
	ErrAlreadyTLS = errors.New("connection already using TLS")

	// ErrAlreadyDeflated is returned when attempting to interpose DEFLATE
	// compression on a connection that already has it.
	ErrAlreadyDeflated = errors.New("connection already using DEFLATE compression")
)
