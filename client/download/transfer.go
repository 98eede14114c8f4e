package download

import "io"

// bufferSize is the size of the intermediate copy buffer.
const bufferSize = 16 << 10 // 16KB

type flusher interface {
	Flush() error
}

// Transfer copies src into dst through a fixed-size buffer until src
// reports io.EOF, returning the number of bytes written. After every
// successful write onChunk, if non-nil, receives the cumulative count.
// A dst implementing Flush() error is flushed once the copy completes.
//
// Read and write errors are returned unmodified, together with the
// count written so far.
func Transfer(dst io.Writer, src io.Reader, onChunk func(written int64)) (int64, error) {
	buf := make([]byte, bufferSize)

	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw < 0 || nw > nr {
				nw = 0
				if werr == nil {
					werr = io.ErrShortWrite
				}
			}
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}

			if onChunk != nil {
				onChunk(written)
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, rerr
		}
	}

	if f, ok := dst.(flusher); ok {
		if err := f.Flush(); err != nil {
			return written, err
		}
	}

	return written, nil
}
