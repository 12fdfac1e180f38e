package rc2

import "errors"

// ErrInvalidLength is returned when CBCDecrypt is given ciphertext that is
// not a positive multiple of the block size.
var ErrInvalidLength = errors.New("rc2: ciphertext length not a multiple of block size")

// ErrBadPadding is returned when CBCDecrypt finds a trailing pad byte
// that is zero or larger than the decrypted length.
var ErrBadPadding = errors.New("rc2: invalid padding")
