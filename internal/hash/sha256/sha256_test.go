package sha256

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const helloWorld = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestSumDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	require.Equal(t, helloWorld, h.Sum("hello world"))
	require.Equal(t, h.Sum("hello world"), h.Sum("hello world"))
	require.NotEqual(t, h.Sum("hello world"), h.Sum("hello world!"))
}

func TestDigestMatchesSum(t *testing.T) {
	t.Parallel()

	got, err := New().Digest(strings.NewReader("hello world"))
	require.NoError(t, err)
	require.Equal(t, helloWorld, got)
}

func TestDigestReaderError(t *testing.T) {
	t.Parallel()

	_, err := New().Digest(failingReader{})
	require.Error(t, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }
