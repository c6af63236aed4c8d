package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestByIDAndName(t *testing.T) {
	for _, c := range []Codec{JSON{}, GoJSON{}} {
		byID, ok := ByID(c.ID())
		require.True(t, ok)
		require.Equal(t, c.Name(), byID.Name())

		byName, ok := ByName(c.Name())
		require.True(t, ok)
		require.Equal(t, c.ID(), byName.ID())
	}

	_, ok := ByID(0)
	require.False(t, ok)
	_, ok = ByName("gob")
	require.False(t, ok)
}

func TestCodecsInterchangeable(t *testing.T) {
	in := sample{Name: "piece", Count: 7}

	data, err := GoJSON{}.Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, JSON{}.Unmarshal(data, &out))
	require.Equal(t, in, out)

	data, err = JSON{}.Marshal(in)
	require.NoError(t, err)
	out = sample{}
	require.NoError(t, GoJSON{}.Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var out sample
	require.Error(t, Default.Unmarshal([]byte("{not json"), &out))
}
