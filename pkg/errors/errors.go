// Package errors defines the failure taxonomy shared by every packaging stage.
//
// Errors are wrapped at their point of origin, e.g.
// fmt.Errorf("%w: %s", errors.ErrNotFound, path), and travel to the caller
// unchanged. Test with the standard library errors.Is.
package errors

import "errors"

var (
	// Input errors 📥
	ErrMissingInput   = errors.New("❌ required input missing")
	ErrInvalidRequest = errors.New("❌ invalid compression request")

	// Filesystem errors 📁
	ErrNotFound = errors.New("❌ file not found")
	ErrIO       = errors.New("❌ filesystem operation failed")
	ErrParse    = errors.New("❌ malformed JSON document")

	// Bundling errors 🧶
	ErrBundle = errors.New("❌ bundling failed")

	// Workspace errors 🔒
	ErrWorkspaceBusy = errors.New("❌ workspace is locked by another run")

	// Verification errors 🔍
	ErrVerification = errors.New("❌ archive verification failed")
)
