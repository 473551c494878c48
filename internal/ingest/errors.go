package ingest

import "errors"

// ErrBadTopic is returned when a raw topic has too few segments to carry a
// device id and attribute tag.
var ErrBadTopic = errors.New("ingest: malformed topic")
