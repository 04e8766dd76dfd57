package objectcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string
	Count int
}

func init() {
	Register(widget{})
}

func TestRoundTripPrimitives(t *testing.T) {
	pool := NewPool()

	cases := []interface{}{
		"hello",
		42,
		int64(-7),
		3.14,
		true,
		[]byte("raw bytes"),
		[]string{"a", "b", "c"},
		map[string]string{"k": "v"},
	}

	for _, want := range cases {
		encoded, err := pool.Encode(want)
		require.NoError(t, err)

		got, err := pool.Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestRoundTripStruct(t *testing.T) {
	pool := NewPool()

	want := widget{Name: "sprocket", Count: 9}
	encoded, err := pool.Encode(want)
	require.NoError(t, err)

	got, err := pool.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDecodeGarbageFails(t *testing.T) {
	pool := NewPool()

	_, err := pool.Decode([]byte("not a gob stream"))
	require.Error(t, err)
}

func TestPoolIsConcurrencySafe(t *testing.T) {
	pool := NewPool()
	done := make(chan struct{})

	for i := 0; i < 32; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			encoded, err := pool.Encode(i)
			require.NoError(t, err)
			got, err := pool.Decode(encoded)
			require.NoError(t, err)
			require.Equal(t, i, got)
		}(i)
	}

	for i := 0; i < 32; i++ {
		<-done
	}
}
