package devfs

import "errors"

// ErrNotSupported is returned by devfs's Link and Unlink. Write is also
// a stub but reports success: it stores nothing and returns 0 bytes,
// since device content is served by the driver behind the device, not
// by devfs itself.
var ErrNotSupported = errors.New("devfs: operation not supported")
