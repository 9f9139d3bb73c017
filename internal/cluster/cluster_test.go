package cluster

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalIsSingleRankNoOp(t *testing.T) {
	c := NewLocal()
	require.Equal(t, 1, c.Size())
	require.Equal(t, 0, c.Rank())
	require.Equal(t, []any{uint32(7)}, c.AllGather(uint32(7)))
	require.Equal(t, uint32(7), c.AllReduceMax(7))
	c.Barrier() // must not block with a single rank
}

func TestLocalAbortClosesDone(t *testing.T) {
	c := NewLocal()
	select {
	case <-c.Done():
		t.Fatal("Done closed before Abort")
	default:
	}
	c.Abort()
	<-c.Done() // must not block
}

// TestInProcessAllGatherRendezvous exercises the collective-safety property:
// every rank's AllGather call returns the exact same, correctly ordered set
// of values, and no rank proceeds past the barrier before every other rank
// has arrived.
func TestInProcessAllGatherRendezvous(t *testing.T) {
	const ranks = 4
	comms := NewInProcess(ranks)

	results := make([][]any, ranks)
	var wg sync.WaitGroup
	wg.Add(ranks)
	for r := 0; r < ranks; r++ {
		go func(r int) {
			defer wg.Done()
			results[r] = comms[r].AllGather(uint32(r * 10))
		}(r)
	}
	wg.Wait()

	for r := 0; r < ranks; r++ {
		require.Len(t, results[r], ranks)
		for i := 0; i < ranks; i++ {
			require.Equal(t, uint32(i*10), results[r][i])
		}
	}
}

// TestInProcessAllGatherMultipleRounds guards against the reused-buffer race
// a naive barrier-backed AllGather can have: a fast rank starting round N+1
// must never corrupt the values a slower rank is still reading for round N.
func TestInProcessAllGatherMultipleRounds(t *testing.T) {
	const ranks = 3
	const rounds = 50
	comms := NewInProcess(ranks)

	var wg sync.WaitGroup
	wg.Add(ranks)
	for r := 0; r < ranks; r++ {
		go func(r int) {
			defer wg.Done()
			for round := 0; round < rounds; round++ {
				got := comms[r].AllGather(uint32(round*ranks + r))
				require.Len(t, got, ranks)
				for i := 0; i < ranks; i++ {
					require.Equal(t, uint32(round*ranks+i), got[i])
				}
			}
		}(r)
	}
	wg.Wait()
}

func TestInProcessAllReduceMax(t *testing.T) {
	comms := NewInProcess(3)
	values := []uint32{5, 40, 12}

	results := make([]uint32, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	for r := 0; r < 3; r++ {
		go func(r int) {
			defer wg.Done()
			results[r] = comms[r].AllReduceMax(values[r])
		}(r)
	}
	wg.Wait()

	for _, got := range results {
		require.Equal(t, uint32(40), got)
	}
}

func TestInProcessBarrierReleasesAllRanksTogether(t *testing.T) {
	const ranks = 5
	comms := NewInProcess(ranks)

	var arrived atomic.Int32
	seenAfterBarrier := make([]int32, ranks)

	var wg sync.WaitGroup
	wg.Add(ranks)
	for r := 0; r < ranks; r++ {
		go func(r int) {
			defer wg.Done()
			arrived.Add(1)
			comms[r].Barrier()
			// Every rank must already have arrived once any rank is released.
			seenAfterBarrier[r] = arrived.Load()
		}(r)
	}
	wg.Wait()

	for _, seen := range seenAfterBarrier {
		require.Equal(t, int32(ranks), seen)
	}
}

func TestInProcessAbortClosesDoneForEveryRank(t *testing.T) {
	comms := NewInProcess(3)
	comms[1].Abort()
	for _, c := range comms {
		<-c.Done()
	}
}
