package docstore_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silexa/approvals/internal/apperr"
	"silexa/approvals/internal/docstore"
)

type doc struct {
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
}

func newStore(t *testing.T) *docstore.Store {
	t.Helper()
	s, err := docstore.New(t.TempDir(), nil, 0)
	require.NoError(t, err)
	return s
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Read("absent.json")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestReadIntoMissingLeavesZeroValue(t *testing.T) {
	s := newStore(t)
	var d doc
	require.NoError(t, s.ReadInto("absent.json", &d))
	assert.Equal(t, doc{}, d)
}

func TestModifyCreatesAndPersists(t *testing.T) {
	s := newStore(t)
	var d doc
	err := s.Modify("counter.json", &d, false, func() error {
		d.Count++
		d.Tags = append(d.Tags, "a")
		return nil
	})
	require.NoError(t, err)

	var reread doc
	require.NoError(t, s.ReadInto("counter.json", &reread))
	assert.Equal(t, 1, reread.Count)
	assert.Equal(t, []string{"a"}, reread.Tags)
}

func TestModifyRoundTripsAcrossCalls(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 5; i++ {
		var d doc
		err := s.Modify("counter.json", &d, false, func() error {
			d.Count++
			return nil
		})
		require.NoError(t, err)
	}
	var final doc
	require.NoError(t, s.ReadInto("counter.json", &final))
	assert.Equal(t, 5, final.Count)
}

func TestModifyFnErrorAbortsWrite(t *testing.T) {
	s := newStore(t)
	boom := apperr.New(apperr.BadInput, "nope")
	var d doc
	err := s.Modify("x.json", &d, false, func() error {
		d.Count = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var reread doc
	require.NoError(t, s.ReadInto("x.json", &reread))
	assert.Equal(t, doc{}, reread)
}

func TestModifyConcurrentIncrementsAreSerialized(t *testing.T) {
	s := newStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var d doc
			err := s.Modify("shared.json", &d, false, func() error {
				d.Count++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var final doc
	require.NoError(t, s.ReadInto("shared.json", &final))
	assert.Equal(t, 50, final.Count)
}

func TestListFiltersByPrefixAndSkipsLockAndTmp(t *testing.T) {
	s := newStore(t)
	var d doc
	require.NoError(t, s.Modify("team-a/1.json", &d, false, func() error { return nil }))
	require.NoError(t, s.Modify("team-a/2.json", &d, false, func() error { return nil }))
	require.NoError(t, s.Modify("team-b/1.json", &d, false, func() error { return nil }))

	names, err := s.List("team-a/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"team-a/1.json", "team-a/2.json"}, names)

	for _, n := range names {
		assert.NotEqual(t, filepath.Ext(n), ".lock")
		assert.NotEqual(t, filepath.Ext(n), ".tmp")
	}
}

func TestReadCacheServesUnchangedDocAndInvalidatesOnMtimeChange(t *testing.T) {
	root := t.TempDir()
	s, err := docstore.New(root, nil, 8)
	require.NoError(t, err)

	var d doc
	require.NoError(t, s.Modify("cached.json", &d, false, func() error {
		d.Count = 1
		return nil
	}))

	first, err := s.Read("cached.json")
	require.NoError(t, err)
	second, err := s.Read("cached.json")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// An out-of-band rewrite with a distinct mtime must not be served
	// from the cache.
	p := filepath.Join(root, "cached.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"count": 2}`), 0o644))
	require.NoError(t, os.Chtimes(p, time.Now().Add(time.Hour), time.Now().Add(time.Hour)))

	var reread doc
	require.NoError(t, s.ReadInto("cached.json", &reread))
	assert.Equal(t, 2, reread.Count)
}

func TestAppendAccumulatesRecords(t *testing.T) {
	s := newStore(t)
	var items []json.RawMessage
	require.NoError(t, s.Append("log.json", &items, doc{Count: 1}))
	items = nil
	require.NoError(t, s.Append("log.json", &items, doc{Count: 2}))
	require.Len(t, items, 2)

	var last doc
	require.NoError(t, json.Unmarshal(items[1], &last))
	assert.Equal(t, 2, last.Count)
}

func TestLastModifiedTracksWrites(t *testing.T) {
	s := newStore(t)
	_, err := s.LastModified("absent.json")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	var d doc
	require.NoError(t, s.Modify("x.json", &d, false, func() error { return nil }))
	mtime, err := s.LastModified("x.json")
	require.NoError(t, err)
	assert.False(t, mtime.IsZero())
}

func TestModifySalvagesCorruptDocumentWhenRequested(t *testing.T) {
	root := t.TempDir()
	s, err := docstore.New(root, nil, 0)
	require.NoError(t, err)

	p := filepath.Join(root, "bad.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o644))

	var d doc
	err = s.Modify("bad.json", &d, false, func() error { return nil })
	assert.True(t, apperr.Is(err, apperr.Corrupt))

	d = doc{}
	err = s.Modify("bad.json", &d, true, func() error {
		d.Count = 7
		return nil
	})
	require.NoError(t, err)

	var reread doc
	require.NoError(t, s.ReadInto("bad.json", &reread))
	assert.Equal(t, 7, reread.Count)
}
