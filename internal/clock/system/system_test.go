package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUsesLocation(t *testing.T) {
	t.Parallel()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	clk := New(tokyo)
	before := time.Now().Add(-time.Second)
	got := clk.Now()
	after := time.Now().Add(time.Second)

	require.Equal(t, tokyo, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	clk, err := Load("")
	require.NoError(t, err)
	require.Equal(t, time.Local, clk.Now().Location())

	clk, err = Load("UTC")
	require.NoError(t, err)
	require.Equal(t, time.UTC, clk.Now().Location())

	_, err = Load("Mars/Olympus_Mons")
	require.Error(t, err)
}
