package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomeshelf/playback/internal/logger"
	"github.com/tomeshelf/playback/internal/models"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), logger.Get())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndPending(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Record("book1", models.ProgressUpdate{FileID: "f1", CurrentTime: 10, Duration: 100}))
	require.NoError(t, j.Record("book1", models.ProgressUpdate{FileID: "f2", CurrentTime: 5, Duration: 200}))

	rows, err := j.Pending()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRecordSupersedes(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Record("book1", models.ProgressUpdate{FileID: "f1", CurrentTime: 10, Duration: 100}))
	require.NoError(t, j.Record("book1", models.ProgressUpdate{FileID: "f1", CurrentTime: 25, Duration: 100}))

	rows, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 25.0, rows[0].CurrentTime)
}

func TestRemove(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Record("book1", models.ProgressUpdate{FileID: "f1", CurrentTime: 10, Duration: 100}))

	rows, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, j.Remove(rows[0].ID))

	rows, err = j.Pending()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReopenKeepsRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.db")

	j, err := Open(path, logger.Get())
	require.NoError(t, err)
	require.NoError(t, j.Record("book1", models.ProgressUpdate{FileID: "f1", CurrentTime: 33, Duration: 100}))
	require.NoError(t, j.Close())

	j2, err := Open(path, logger.Get())
	require.NoError(t, err)
	defer j2.Close()

	rows, err := j2.Pending()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 33.0, rows[0].CurrentTime)
}
