package kv_capacity

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructionErrorUnwrap(t *testing.T) {
	err := NewConstructionError("/tmp/x.bin", os.ErrPermission)

	require.ErrorIs(t, err, os.ErrPermission)
	require.Contains(t, err.Error(), "/tmp/x.bin")
}

func TestWriteErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	var err error = NewWriteError(7, cause)

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	require.Equal(t, uint64(7), writeErr.Seq)
	require.ErrorIs(t, err, cause)
}
