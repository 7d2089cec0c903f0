package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/owl/internal/database"
	"github.com/OCAP2/owl/internal/model"
	"github.com/OCAP2/owl/internal/storage"
	"github.com/OCAP2/owl/pkg/core"
)

var _ storage.Backend = (*Backend)(nil)

func TestEndRecording_DumpsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "owl.db")
	b, err := New(Config{DumpPath: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.StartRecording(&core.Recording{Name: "dump", StartTime: time.Now()}))
	require.NoError(t, b.RecordMarkers(&core.MarkerFrame{
		Time:    1,
		Markers: []core.Marker{{ID: 1, X: 1}, {ID: 2, Y: 2}},
	}))
	require.NoError(t, b.EndRecording())
	require.NoError(t, b.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	disk, err := database.GetSqliteDB(path)
	require.NoError(t, err)
	var count int64
	require.NoError(t, disk.Model(&model.MarkerSample{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var rec model.Recording
	require.NoError(t, disk.First(&rec).Error)
	assert.Equal(t, "dump", rec.Name)
	assert.NotNil(t, rec.EndTime)
}

func TestDumpLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.db")
	b, err := New(Config{DumpPath: path, DumpInterval: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNoDumpPath(t *testing.T) {
	b, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.StartRecording(&core.Recording{Name: "nodump"}))
	require.NoError(t, b.EndRecording())
	assert.NoError(t, b.Close())
	assert.ErrorIs(t, b.Dump(), database.ErrNoDumpPath)
}
