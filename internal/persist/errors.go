package persist

import "errors"

// ErrSnapshot indicates a snapshot write failed. The in-memory registry is
// unaffected; the writer retries on its next tick.
var ErrSnapshot = errors.New("persist: snapshot write failed")
