package download

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestTransfer_CopiesAllBytes(t *testing.T) {
	src := bytes.Repeat([]byte("0123456789"), 5000) // 50KB, several buffers
	var dst bytes.Buffer

	var counts []int64
	n, err := Transfer(&dst, bytes.NewReader(src), func(written int64) {
		counts = append(counts, written)
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if n != int64(len(src)) {
		t.Errorf("written = %d, want %d", n, len(src))
	}
	if !bytes.Equal(dst.Bytes(), src) {
		t.Error("destination does not match source")
	}

	if len(counts) == 0 {
		t.Fatal("expected chunk callbacks")
	}
	for i := 1; i < len(counts); i++ {
		if counts[i] < counts[i-1] {
			t.Fatalf("counts decreased at %d: %d < %d", i, counts[i], counts[i-1])
		}
	}
	if last := counts[len(counts)-1]; last != int64(len(src)) {
		t.Errorf("last count = %d, want %d", last, len(src))
	}
}

func TestTransfer_Empty(t *testing.T) {
	var called bool
	n, err := Transfer(io.Discard, strings.NewReader(""), func(int64) { called = true })
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if n != 0 {
		t.Errorf("written = %d, want 0", n)
	}
	if called {
		t.Error("callback should not run for an empty source")
	}
}

func TestTransfer_ReadErrorUnmodified(t *testing.T) {
	readErr := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(readErr))

	var dst bytes.Buffer
	n, err := Transfer(&dst, src, nil)
	if err != readErr {
		t.Errorf("expected the read error itself, got: %v", err)
	}
	if n != int64(len("partial")) {
		t.Errorf("written = %d, want %d", n, len("partial"))
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestTransfer_WriteErrorUnmodified(t *testing.T) {
	writeErr := errors.New("disk full")

	_, err := Transfer(failingWriter{err: writeErr}, strings.NewReader("data"), nil)
	if err != writeErr {
		t.Errorf("expected the write error itself, got: %v", err)
	}
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) / 2, nil }

func TestTransfer_ShortWrite(t *testing.T) {
	_, err := Transfer(shortWriter{}, strings.NewReader("data"), nil)
	if !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("expected io.ErrShortWrite, got: %v", err)
	}
}

func TestTransfer_FlushesSink(t *testing.T) {
	var out bytes.Buffer
	bw := bufio.NewWriterSize(&out, 1<<20)

	if _, err := Transfer(bw, strings.NewReader("buffered"), nil); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if out.String() != "buffered" {
		t.Errorf("sink not flushed; got %q", out.String())
	}
}
