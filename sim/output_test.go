package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable(name string) *Table {
	return &Table{
		Name:    name,
		Columns: []string{"seconds", "units"},
		Rows:    [][]string{{"0", "1"}, {"0.1", "2"}},
	}
}

func TestFileOutput_SaveCSV_WritesOneFilePerTable(t *testing.T) {
	dir := t.TempDir()
	o := NewFileOutput()
	o.AddWorld(0)
	o.UpdateDataset(0, "level", sampleTable("level"))

	require.NoError(t, o.Save(dir, "csv"))

	raw, err := os.ReadFile(filepath.Join(dir, "level.csv"))
	require.NoError(t, err)
	assert.Equal(t, "seconds,units\n0,1\n0.1,2\n", string(raw))
}

func TestFileOutput_SaveCSV_MultiWorld_PrefixesWorldIndex(t *testing.T) {
	dir := t.TempDir()
	o := NewFileOutput()
	o.AddWorld(0)
	o.AddWorld(1)
	o.UpdateDataset(0, "level", sampleTable("level"))
	o.UpdateDataset(1, "level", sampleTable("level"))

	require.NoError(t, o.Save(dir, "csv"))

	_, err := os.Stat(filepath.Join(dir, "world00 level.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "world01 level.csv"))
	assert.NoError(t, err)
}

func TestFileOutput_SaveGob_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	o := NewFileOutput()
	o.AddWorld(0)
	o.UpdateDataset(0, "level", sampleTable("level"))

	require.NoError(t, o.Save(dir, "gob"))

	table, err := ReadTableGob(filepath.Join(dir, "level.gob"))
	require.NoError(t, err)
	assert.Equal(t, sampleTable("level"), table)
}

func TestFileOutput_Save_UnknownFormat_Fails(t *testing.T) {
	o := NewFileOutput()
	assert.Error(t, o.Save(t.TempDir(), "xml"))
}

func TestFileOutput_SavesAggregatedTable(t *testing.T) {
	dir := t.TempDir()
	o := NewFileOutput()
	o.AggregateBatches([]SeriesSummary{{Dataset: "d", Series: "s", Count: 1}})

	require.NoError(t, o.Save(dir, "csv"))
	_, err := os.Stat(filepath.Join(dir, "Aggregated.csv"))
	assert.NoError(t, err)
}

func TestFileOutput_UpdateDataset_ReplacesTable(t *testing.T) {
	o := NewFileOutput()
	o.UpdateDataset(0, "level", sampleTable("old"))
	o.UpdateDataset(0, "level", sampleTable("new"))
	assert.Equal(t, "new", o.Table(0, "level").Name)
}

func TestFileName_SanitizesSeparators(t *testing.T) {
	assert.Equal(t, "Patients - Patient 001", fileName("Patients - Patient 001"))
	assert.Equal(t, "a-b-c", fileName("a/b:c"))
}

func TestClearDirectory_RemovesOnlyRunDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "run-deadbeef"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	require.NoError(t, clearDirectory(dir))

	_, err := os.Stat(filepath.Join(dir, "run-deadbeef"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

func TestRunDirectory_UsesShortRunID(t *testing.T) {
	dir := runDirectory("out", "0123456789abcdef")
	assert.Equal(t, filepath.Join("out", "run-01234567"), dir)
}
