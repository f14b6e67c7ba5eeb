package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFibonacciNext(t *testing.T) {
	require.Equal(t, 1, FibonacciNext(0))
	require.Equal(t, 2, FibonacciNext(1))
	require.Equal(t, 3, FibonacciNext(2))
	require.Equal(t, 13, FibonacciNext(8))
	require.Equal(t, 13, FibonacciNext(10))
}

func TestBackOff(t *testing.T) {
	seq := []int{}
	backOff := 1
	for i := 0; i < 9; i++ {
		seq = append(seq, backOff)
		backOff = BackOff(backOff, 30)
	}
	// restarts from 1 once the next step would exceed max.
	require.Equal(t, []int{1, 2, 3, 5, 8, 13, 21, 1, 2}, seq)
}
