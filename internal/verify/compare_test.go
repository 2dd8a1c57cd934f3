package verify

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueSame(t *testing.T) {
	for _, x := range []float64{0, 0.5, 1, 1.5, -1, 3} {
		require.True(t, ValueSame(x, x), "x=%v", x)
		require.False(t, ValueSame(x, x+2*Epsilon), "x=%v", x)
	}
	require.True(t, ValueSame(1, 1+Epsilon/2))
	// tolerance is absolute: a one-ulp difference at large magnitude is a mismatch
	require.False(t, ValueSame(1136275, math.Nextafter(1136275, 2e6)))
}

// grid returns a column-major m x p buffer and its row-major twin, both
// holding i*p+j.
func grid(m, p int) ([]float64, [][]float64) {
	obs := make([]float64, m*p)
	exp := make([][]float64, m)
	for i := 0; i < m; i++ {
		exp[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			v := float64(i*p + j)
			exp[i][j] = v
			obs[i+j*m] = v
		}
	}
	return obs, exp
}

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestCompareAllMatch(t *testing.T) {
	obs, exp := grid(4, 3)
	var out bytes.Buffer
	res, err := Compare(&out, obs, 4, exp, Options{})
	require.NoError(t, err)
	require.True(t, res.Passed())
	require.Equal(t, 12, res.Compared)
	require.False(t, res.Truncated)
	require.Empty(t, out.String())
}

func TestCompareSingleMismatch(t *testing.T) {
	obs, exp := grid(4, 3)
	obs[2+1*4] += 1.0
	var out bytes.Buffer
	res, err := Compare(&out, obs, 4, exp, Options{})
	require.NoError(t, err)
	require.False(t, res.Passed())
	require.Equal(t, 1, res.Total)
	require.Equal(t, []Mismatch{{Row: 2, Col: 1, Expected: 7, Observed: 8}}, res.Reported)
	require.Equal(t, []string{"fail - element [2, 1], expected: 7, got: 8"}, lines(out.String()))
}

func TestCompareCapsReports(t *testing.T) {
	for _, policy := range []Policy{StopAfterCap, ScanAll} {
		t.Run(policy.String(), func(t *testing.T) {
			obs, exp := grid(6, 5)
			for i := range obs {
				obs[i] = -1
			}
			var out bytes.Buffer
			res, err := Compare(&out, obs, 6, exp, Options{Policy: policy})
			require.NoError(t, err)
			require.False(t, res.Passed())
			require.Len(t, lines(out.String()), DefaultMaxReports)
			require.Len(t, res.Reported, DefaultMaxReports)
			// scan order is row by row over the column-major buffer
			require.Equal(t, Mismatch{Row: 0, Col: 4, Expected: 4, Observed: -1}, res.Reported[4])
			switch policy {
			case StopAfterCap:
				require.Equal(t, 5, res.Compared)
				require.Equal(t, 5, res.Total)
				require.True(t, res.Truncated)
			case ScanAll:
				require.Equal(t, 30, res.Compared)
				require.Equal(t, 30, res.Total)
				require.False(t, res.Truncated)
			}
		})
	}
}

func TestCompareCustomCap(t *testing.T) {
	obs, exp := grid(3, 3)
	for i := range obs {
		obs[i] += 10
	}
	var out bytes.Buffer
	res, err := Compare(&out, obs, 3, exp, Options{MaxReports: 2})
	require.NoError(t, err)
	require.Len(t, lines(out.String()), 2)
	require.Equal(t, 2, res.Total)
}

func TestCompareStopAtCapOnLastElementIsNotTruncated(t *testing.T) {
	obs, exp := grid(2, 2)
	obs[1+1*2] = 99
	res, err := Compare(&bytes.Buffer{}, obs, 2, exp, Options{MaxReports: 1})
	require.NoError(t, err)
	require.Equal(t, 4, res.Compared)
	require.False(t, res.Truncated)
}

func TestCompareShapeErrors(t *testing.T) {
	obs, exp := grid(3, 2)
	_, err := Compare(&bytes.Buffer{}, obs, 2, exp, Options{})
	require.ErrorIs(t, err, ErrShape)
	_, err = Compare(&bytes.Buffer{}, obs[:4], 3, exp, Options{})
	require.ErrorIs(t, err, ErrShape)
	_, err = Compare(&bytes.Buffer{}, obs, 3, nil, Options{})
	require.ErrorIs(t, err, ErrShape)
	exp[1] = exp[1][:1]
	_, err = Compare(&bytes.Buffer{}, obs, 3, exp, Options{})
	require.ErrorIs(t, err, ErrShape)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("scan-all")
	require.NoError(t, err)
	require.Equal(t, ScanAll, p)
	p, err = ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, StopAfterCap, p)
	_, err = ParsePolicy("sometimes")
	require.Error(t, err)
}
