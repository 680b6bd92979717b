package random

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/pkg/errors"
)

// fakeRandReader implements the io.Reader interface and is used to force
// errors in the Read function.
type fakeRandReader struct {
	n   int
	err error
}

// Read returns the fake reader error and the lesser of the fake reader value
// and the length of p.
func (r *fakeRandReader) Read(p []byte) (int, error) {
	n := r.n
	if n > len(p) {
		n = len(p)
	}
	return n, r.err
}

// TestBytesAreDistinct makes sure that consecutive 64-byte draws differ. A
// collision would mean the random source is broken.
func TestBytesAreDistinct(t *testing.T) {
	const tries = 1 << 8
	seen := make(map[string]struct{}, tries)
	for i := 0; i < tries; i++ {
		buf, err := Bytes(64)
		if err != nil {
			t.Fatalf("Bytes iteration %d failed - err %v", i, err)
		}
		if len(buf) != 64 {
			t.Fatalf("Bytes iteration %d returned %d bytes", i, len(buf))
		}
		if bytes.Equal(buf, make([]byte, 64)) {
			t.Fatalf("Bytes iteration %d returned only zeros", i)
		}
		if _, ok := seen[string(buf)]; ok {
			t.Fatalf("Bytes iteration %d repeated a previous value", i)
		}
		seen[string(buf)] = struct{}{}
	}
}

// TestReadErrors uses a fake reader to force error paths to be executed
// and checks the results accordingly.
func TestReadErrors(t *testing.T) {
	reader := rand.Reader
	defer func() { rand.Reader = reader }()

	rand.Reader = &fakeRandReader{n: 2, err: io.EOF}
	buf, err := Bytes(8)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Error not expected value of %v [%v]",
			io.ErrUnexpectedEOF, err)
	}
	if buf != nil {
		t.Errorf("Buffer is not nil [%v]", buf)
	}
}
