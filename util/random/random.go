package random

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

// Read fills buf with cryptographically secure random bytes.
func Read(buf []byte) error {
	_, err := io.ReadFull(rand.Reader, buf)
	return errors.WithStack(err)
}

// Bytes returns n cryptographically secure random bytes.
func Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	err := Read(buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}
