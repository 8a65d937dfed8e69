package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetFloat64Slice(t *testing.T) {
	t.Run("returns slice with requested length", func(t *testing.T) {
		s, release := GetFloat64Slice(64)
		defer release()

		require.Len(t, s, 64)
		require.GreaterOrEqual(t, cap(s), 64)
	})

	t.Run("grows when capacity is insufficient", func(t *testing.T) {
		_, release := GetFloat64Slice(4)
		release()

		s, release := GetFloat64Slice(4096)
		defer release()
		require.Len(t, s, 4096)
	})

	t.Run("zeroed variant clears contents", func(t *testing.T) {
		s, release := GetFloat64Slice(8)
		for i := range s {
			s[i] = float64(i + 1)
		}
		release()

		z, release := GetZeroedFloat64Slice(8)
		defer release()
		for _, v := range z {
			require.Zero(t, v)
		}
	})
}
