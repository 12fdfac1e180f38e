package wire

import "errors"

// ErrShortBuffer is the sticky error a GetBuffer sets once a read runs past
// the end of its backing bytes.
var ErrShortBuffer = errors.New("wire: short buffer")
