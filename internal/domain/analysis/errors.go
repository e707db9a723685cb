package analysis

import "errors"

// ErrAudioFileMissing indicates the caller passed a path that does not
// reference a readable audio file. This is a caller bug, so it is surfaced
// as a hard failure instead of an error-tagged result.
var ErrAudioFileMissing = errors.New("audio file missing or unreadable")

// ErrNoPrincipal indicates no identity could be resolved for a scoped
// remote read or write.
var ErrNoPrincipal = errors.New("no principal resolved")
