package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobin_Next_EvenDistribution(t *testing.T) {
	// GIVEN a rotation of three members
	rr := NewRoundRobin([]string{"a", "b", "c"})

	// WHEN 30 picks are made
	counts := map[string]int{}
	for i := 0; i < 30; i++ {
		id, ok := rr.Next()
		require.True(t, ok)
		counts[id]++
	}

	// THEN each member was picked exactly 10 times
	assert.Equal(t, map[string]int{"a": 10, "b": 10, "c": 10}, counts)
}

func TestRoundRobin_Next_CountsDifferByAtMostOne(t *testing.T) {
	rr := NewRoundRobin([]string{"a", "b", "c"})

	// any window of consecutive picks keeps per-member counts within 1
	counts := map[string]int{}
	for i := 0; i < 17; i++ {
		id, _ := rr.Next()
		counts[id]++
	}
	min, max := 17, 0
	for _, n := range counts {
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	assert.LessOrEqual(t, max-min, 1)
}

func TestRoundRobin_Next_Empty(t *testing.T) {
	rr := NewRoundRobin(nil)
	_, ok := rr.Next()
	assert.False(t, ok)
}

func TestRoundRobin_Add_JoinsRotation(t *testing.T) {
	rr := NewRoundRobin([]string{"a"})
	rr.Add("b")
	rr.Add("b") // duplicate is ignored
	assert.Equal(t, 2, rr.Len())

	counts := map[string]int{}
	for i := 0; i < 4; i++ {
		id, _ := rr.Next()
		counts[id]++
	}
	assert.Equal(t, map[string]int{"a": 2, "b": 2}, counts)
}

func TestRoundRobin_Remove_KeepsCursorPosition(t *testing.T) {
	// GIVEN a rotation mid-cycle
	rr := NewRoundRobin([]string{"a", "b", "c"})
	first, _ := rr.Next()
	require.Equal(t, "a", first)

	// WHEN the already-served member is removed
	rr.Remove("a")

	// THEN the rotation continues with the member that was up next
	next, _ := rr.Next()
	assert.Equal(t, "b", next)
	next, _ = rr.Next()
	assert.Equal(t, "c", next)
	next, _ = rr.Next()
	assert.Equal(t, "b", next)
}

func TestRoundRobin_Remove_Unknown_NoOp(t *testing.T) {
	rr := NewRoundRobin([]string{"a"})
	rr.Remove("zz")
	assert.Equal(t, []string{"a"}, rr.Members())
}
