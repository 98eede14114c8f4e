package client

import (
	"errors"

	"github.com/adamwoolhether/netlite/client/download"
)

// tracerName identifies spans started by the client itself.
const tracerName = "github.com/adamwoolhether/netlite/client"

// maxPrealloc caps the buffer grown up front from a declared
// Content-Length for in-memory gets.
const maxPrealloc = 8 << 20 // 8MB

// ErrReadTimeout is wrapped when no data arrived within the read timeout.
// It always appears together with [ErrNetwork].
var ErrReadTimeout = errors.New("read timeout")

// UnexpectedStatusError is returned when the server answers with
// anything but 200 OK.
type UnexpectedStatusError = download.StatusError
