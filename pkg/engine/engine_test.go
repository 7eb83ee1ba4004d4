package engine

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvstash/kvstash/pkg/collection"
	"github.com/kvstash/kvstash/pkg/kv"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Options{DataDir: t.TempDir(), LockTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestSaveThenGetKeySeedScenario(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Save("default", "user", map[string]any{"name": "balu", "age": int64(30)}, "")
	require.NoError(t, err)

	res, err := e.GetKey("default", "user", "name", true)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.SubpathFound)
	assert.Equal(t, "balu", res.Value)
}

func TestSaveOutcomes(t *testing.T) {
	e := newTestEngine(t)
	outcome, err := e.Save("default", "q", "x", "")
	require.NoError(t, err)
	assert.Equal(t, kv.SaveCreated, outcome)

	outcome, err = e.Save("default", "q", "y", "")
	require.NoError(t, err)
	assert.Equal(t, kv.SaveOverwritten, outcome)

	outcome, err = e.Save("default", "q", "y", "")
	require.NoError(t, err)
	assert.Equal(t, kv.SaveNoChange, outcome)
}

func TestPatchRecordsHistoryNewestFirst(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Save("default", "q", "x", "")
	require.NoError(t, err)
	require.NoError(t, e.Patch("default", "q", "", "y"))

	records, err := e.History("default", "q")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "y", string(records[0].Value.Raw))
	assert.Equal(t, "x", string(records[1].Value.Raw))
}

func TestQueueSeedScenario(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CollectionPush("jobs", collection.ModeQueue, "a", nil)
	require.NoError(t, err)
	_, err = e.CollectionPush("jobs", collection.ModeQueue, "b", nil)
	require.NoError(t, err)

	first, ok, err := e.CollectionPop("jobs", collection.ModeQueue)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(first.Value.Raw))

	second, ok, err := e.CollectionPop("jobs", collection.ModeQueue)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", string(second.Value.Raw))

	_, ok, err = e.CollectionPop("jobs", collection.ModeQueue)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPriorityQueueSeedScenario(t *testing.T) {
	e := newTestEngine(t)
	low, med, high := int64(1), int64(50), int64(100)

	_, err := e.CollectionPush("jobs", collection.ModePriorityQueue, "low", &low)
	require.NoError(t, err)
	_, err = e.CollectionPush("jobs", collection.ModePriorityQueue, "high", &high)
	require.NoError(t, err)
	_, err = e.CollectionPush("jobs", collection.ModePriorityQueue, "med", &med)
	require.NoError(t, err)

	var order []string
	for i := 0; i < 3; i++ {
		item, ok, err := e.CollectionPop("jobs", collection.ModePriorityQueue)
		require.NoError(t, err)
		require.True(t, ok)
		order = append(order, string(item.Value.Raw))
	}
	assert.Equal(t, []string{"high", "med", "low"}, order)
}

func TestDeleteThenRestoreSeedScenario(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Save("default", "k", "v1", "")
	require.NoError(t, err)
	_, err = e.Save("default", "k", "v2", "")
	require.NoError(t, err)
	require.NoError(t, e.Delete("default", "k"))
	require.NoError(t, e.Restore("default", "k", nil))

	res, err := e.GetKey("default", "k", "", true)
	require.NoError(t, err)
	assert.Equal(t, "v2", res.Value)
}

func TestCrossWorkspaceMoveSeedScenario(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Save("ws1", "k", "c", "")
	require.NoError(t, err)

	require.NoError(t, e.MoveKey("ws1", "ws2", "k", false))

	res, err := e.GetKey("ws1", "k", "", true)
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = e.GetKey("ws2", "k", "", true)
	require.NoError(t, err)
	assert.Equal(t, "c", res.Value)
}

func TestTTLExpiryMakesKeyNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Save("default", "k", "v", "1s")
	require.NoError(t, err)

	res, err := e.GetKey("default", "k", "", true)
	require.NoError(t, err)
	assert.True(t, res.Found)

	time.Sleep(1100 * time.Millisecond)

	res, err = e.GetKey("default", "k", "", true)
	require.NoError(t, err)
	assert.False(t, res.Found)

	keys, err := e.ListKeys("default", "")
	require.NoError(t, err)
	assert.NotContains(t, keys, "k")
}

func TestEncryptionRoundTripAndWrongKey(t *testing.T) {
	dir := t.TempDir()
	e1, err := New(Options{DataDir: dir, LockTimeout: time.Second, Passphrase: "correct-horse"})
	require.NoError(t, err)
	_, err = e1.Save("default", "k", "v", "")
	require.NoError(t, err)
	require.NoError(t, e1.Close())

	e2, err := New(Options{DataDir: dir, LockTimeout: time.Second, Passphrase: "correct-horse"})
	require.NoError(t, err)
	res, err := e2.GetKey("default", "k", "", true)
	require.NoError(t, err)
	assert.Equal(t, "v", res.Value)
	require.NoError(t, e2.Close())

	e3, err := New(Options{DataDir: dir, LockTimeout: time.Second, Passphrase: "wrong-password"})
	require.NoError(t, err)
	_, err = e3.GetKey("default", "k", "", true)
	assert.Error(t, err)
	require.NoError(t, e3.Close())
}

func TestSearchFindsTokenizedValue(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Save("default", "doc1", "the quick brown fox", "")
	require.NoError(t, err)
	_, err = e.Save("default", "doc2", "lazy dog sleeps", "")
	require.NoError(t, err)

	results, err := e.Search("default", "fox", 10, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1", results[0].Key)
}

func TestExportImportRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Save("default", "a", "1", "")
	require.NoError(t, err)
	_, err = e.Save("default", "b", map[string]any{"x": int64(1)}, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := e.ExportData("default", &buf, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	e2 := newTestEngine(t)
	imported, err := e2.ImportData("default", &buf, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	keys, err := e2.ListKeys("default", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestKVOpOnCollectionWorkspaceFails(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CollectionPush("jobs", collection.ModeQueue, "a", nil)
	require.NoError(t, err)

	_, err = e.Save("jobs", "k", "v", "")
	assert.Error(t, err)
}
