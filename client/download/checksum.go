package download

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// checksum holds the digest a download body must hash to.
type checksum struct {
	h    hash.Hash
	want []byte
}

// newChecksum decodes expected, which must be a hex digest of the size
// h produces. Case and surrounding space are ignored.
func newChecksum(h hash.Hash, expected string) (*checksum, error) {
	want, err := hex.DecodeString(strings.TrimSpace(expected))
	if err != nil {
		return nil, fmt.Errorf("expected checksum is not hex: %w", err)
	}
	if len(want) != h.Size() {
		return nil, fmt.Errorf("expected checksum is %d bytes, hash produces %d", len(want), h.Size())
	}

	return &checksum{h: h, want: want}, nil
}

// writer resets the hash and returns w teed into it.
func (c *checksum) writer(w io.Writer) io.Writer {
	if c == nil {
		return w
	}

	c.h.Reset()
	return io.MultiWriter(w, c.h)
}

func (c *checksum) verify() error {
	if c == nil {
		return nil
	}

	if got := c.h.Sum(nil); !bytes.Equal(got, c.want) {
		return &Error{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("expected %x, got %x", c.want, got),
		}
	}

	return nil
}
