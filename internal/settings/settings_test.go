package settings

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestRegisterFlags(t *testing.T) {
	s := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	s.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-max-streams", "3",
		"-join-algorithm", "full_sorting_merge",
		"-keep-left-read-in-order",
		"-use-query-cache",
		"-query-cache-ttl", "2m",
		"-extremes",
	}))
	require.Equal(t, 3, s.MaxStreams)
	require.Equal(t, JoinFullSortingMerge, s.JoinAlgorithm)
	require.True(t, s.KeepLeftReadInOrder)
	require.True(t, s.UseQueryCache)
	require.Equal(t, 2*time.Minute, s.QueryCacheTTL)
	require.True(t, s.Extremes)
	require.NoError(t, s.Validate())
}

func TestValidateRejects(t *testing.T) {
	s := Default()
	s.MaxStreams = 0
	require.Error(t, s.Validate())

	s = Default()
	s.JoinAlgorithm = "nested_loop"
	require.Error(t, s.Validate())

	s = Default()
	s.UseQueryCache = true
	s.QueryCacheTTL = 0
	require.Error(t, s.Validate())
}
