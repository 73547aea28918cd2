package auth

import "errors"

// ErrInvalidToken is wrapped by every token parse failure.
var ErrInvalidToken = errors.New("auth: invalid token")
