package snapshot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inelson/kubesql/internal/models"
	"github.com/inelson/kubesql/pkg/api"
)

func buildNodes(t *testing.T, names ...string) *Snapshot {
	t.Helper()
	var tables models.Tables
	for _, n := range names {
		tables.Nodes = append(tables.Nodes, models.ResourceRecord{UID: "uid-" + n, Name: n})
	}
	s, err := Build(context.Background(), tables)
	require.NoError(t, err)
	return s
}

func nodeCount(t *testing.T, s *Snapshot) int64 {
	t.Helper()
	res, err := s.Query(context.Background(), "SELECT count(*) FROM nodes")
	require.NoError(t, err)
	return res.Rows[0][0].(int64)
}

func TestEmpty(t *testing.T) {
	s, err := Empty(context.Background())
	require.NoError(t, err)
	defer s.Release()

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, api.TableCounts{}, s.Counts())
	assert.EqualValues(t, 0, nodeCount(t, s))
}

func TestStore_PublishSwapsCurrent(t *testing.T) {
	first := buildNodes(t, "a")
	st := NewStore(first)
	assert.Same(t, first, st.Current())

	second := buildNodes(t, "a", "b")
	old := st.Publish(second)

	assert.Same(t, first, old)
	assert.Same(t, second, st.Current())
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, first.Closed(), "superseded snapshot without readers should be closed")
}

func TestStore_ReaderKeepsSupersededSnapshot(t *testing.T) {
	first := buildNodes(t, "a")
	st := NewStore(first)

	held, err := st.Acquire()
	require.NoError(t, err)
	require.Same(t, first, held)

	st.Publish(buildNodes(t, "a", "b", "c"))

	// The held snapshot is unchanged and still queryable.
	assert.False(t, held.Closed())
	assert.Len(t, held.Nodes(), 1)
	assert.Equal(t, "a", held.Nodes()[0].Name)
	assert.EqualValues(t, 1, nodeCount(t, held))

	held.Release()
	assert.True(t, held.Closed())

	cur, err := st.Acquire()
	require.NoError(t, err)
	defer cur.Release()
	assert.EqualValues(t, 3, nodeCount(t, cur))
}

func TestStore_PublishSameSnapshotIsNoop(t *testing.T) {
	s := buildNodes(t, "a")
	st := NewStore(s)
	st.Publish(s)
	assert.False(t, s.Closed())
}

func TestStore_AcquireAfterCloseFails(t *testing.T) {
	s := buildNodes(t, "a")
	st := NewStore(s)

	held, err := st.Acquire()
	require.NoError(t, err)

	st.Close()
	st.Close()

	done := make(chan error, 1)
	go func() {
		_, err := st.Acquire()
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStoreClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not return after Close")
	}

	// A reader from before Close keeps its snapshot until it releases.
	assert.False(t, held.Closed())
	assert.EqualValues(t, 1, nodeCount(t, held))
	held.Release()
	assert.True(t, s.Closed())
}

func TestStore_PublishAfterCloseReleases(t *testing.T) {
	st := NewStore(buildNodes(t, "a"))
	st.Close()

	next := buildNodes(t, "b")
	assert.Nil(t, st.Publish(next))
	assert.True(t, next.Closed())

	_, err := st.Acquire()
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestStore_ConcurrentAcquireAndPublish(t *testing.T) {
	st := NewStore(buildNodes(t, "a"))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s, err := st.Acquire()
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				res, err := s.Query(context.Background(), "SELECT count(*) FROM nodes")
				if err != nil {
					t.Errorf("query on acquired snapshot failed: %v", err)
				} else if got := res.Rows[0][0].(int64); got != int64(len(s.Nodes())) {
					t.Errorf("engine rows %d disagree with snapshot rows %d", got, len(s.Nodes()))
				}
				s.Release()
			}
		}()
	}

	for i := 0; i < 20; i++ {
		names := make([]string, i+1)
		for j := range names {
			names[j] = string(rune('a' + j))
		}
		st.Publish(buildNodes(t, names...))
	}
	close(stop)
	wg.Wait()

	assert.Len(t, st.Current().Nodes(), 20)
}
