package cart

import "errors"

var (
	ErrStorageRead  = errors.New("cart storage read failed")
	ErrCorruptState = errors.New("cart storage holds undecodable state")
	ErrStorageWrite = errors.New("cart storage write failed")

	// ErrNoProvider is returned when the cart is used without a live registration.
	ErrNoProvider = errors.New("cart used without its provider")
)
