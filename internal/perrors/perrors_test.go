package perrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindRoundTrip(t *testing.T) {
	err := New(KindCorruptDB, "bad key %q", "abc")
	require.Equal(t, KindCorruptDB, KindOf(err))
	require.Equal(t, 2, KindOf(err).ExitCode())
}

func TestWrapPreservesKind(t *testing.T) {
	base := fmt.Errorf("file missing")
	wrapped := Wrap(KindIO, base, "reading db")
	require.Equal(t, KindIO, KindOf(wrapped))
	require.Equal(t, 1, KindOf(wrapped).ExitCode())
}

func TestKindNilError(t *testing.T) {
	require.Equal(t, KindNone, KindOf(nil))
	require.Equal(t, 0, KindNone.ExitCode())
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.NoError(t, Wrap(KindIO, nil, "whatever"))
}

func TestUnclassifiedDefaultsToIO(t *testing.T) {
	require.Equal(t, KindIO, KindOf(fmt.Errorf("boom")))
}
