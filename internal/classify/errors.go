package classify

import "errors"

// ErrConfigLoad is returned when a classification source file cannot be read
// or parsed. The previous table stays in effect; the load is retried on the
// next poll.
var ErrConfigLoad = errors.New("classify: config load failed")
