// Package repository implements the data-mapper over the credential store.
// Sentinel errors defined here let handlers translate store failures into
// the right HTTP status without inspecting driver errors.
package repository

import "errors"

// ErrEmailExists is returned by Create when a user with the same email is
// already present. Handlers translate this into an HTTP 400 response.
var ErrEmailExists = errors.New("email already exists")

// ErrResetCodeInvalid is returned when a reset attempt does not match a
// pending challenge: unknown email, wrong code, or an expired code all
// collapse into this one value so the caller cannot tell them apart.
var ErrResetCodeInvalid = errors.New("invalid or expired reset code")
