package logx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(&out)

	logger.Info().Str("spill_file", "capacitymap-x.bin").Msg("spill store created")

	require.Contains(t, out.String(), "spill store created")
	require.Contains(t, out.String(), "spill_file=")
}
