package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := New(1*time.Second, 8*time.Second)
	require.Equal(t, 1*time.Second, b.Next())
	require.Equal(t, 2*time.Second, b.Next())
	require.Equal(t, 4*time.Second, b.Next())
	require.Equal(t, 8*time.Second, b.Next())
	require.Equal(t, 8*time.Second, b.Next()) // capped
}

func TestResetReturnsToBase(t *testing.T) {
	b := New(1*time.Second, 30*time.Second)
	b.Next()
	b.Next()
	b.Reset()
	require.Equal(t, 1*time.Second, b.Next())
}
