package sim

import (
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Output collects the recorded tables of every world of a run and stores
// them. The kernel never branches on which Output is attached; simulation
// results are identical whatever the collector does with them.
type Output interface {
	// AddWorld announces a world before its tables arrive.
	AddWorld(index int)
	// UpdateDataset stores (or replaces) one table of one world.
	UpdateDataset(worldIndex int, tableID string, table *Table)
	// AggregateBatches stores the cross-world summary of a batch run.
	AggregateBatches(summaries []SeriesSummary)
	// Save writes everything to the directory in the given format
	// ("csv" or "gob").
	Save(dir, format string) error
}

// FileOutput is the headless Output: it only stores tables and writes them
// to files on Save, one file per table.
type FileOutput struct {
	tables map[int]map[string]*Table
	order  map[int][]string
	worlds []int

	aggregated *Table
}

// NewFileOutput creates an empty file output.
func NewFileOutput() *FileOutput {
	return &FileOutput{
		tables: make(map[int]map[string]*Table),
		order:  make(map[int][]string),
	}
}

// AddWorld registers a world slot.
func (o *FileOutput) AddWorld(index int) {
	if _, ok := o.tables[index]; ok {
		return
	}
	o.tables[index] = make(map[string]*Table)
	o.worlds = append(o.worlds, index)
}

// UpdateDataset stores one table, replacing any previous table under the
// same id.
func (o *FileOutput) UpdateDataset(worldIndex int, tableID string, table *Table) {
	if _, ok := o.tables[worldIndex]; !ok {
		o.AddWorld(worldIndex)
	}
	if _, ok := o.tables[worldIndex][tableID]; !ok {
		o.order[worldIndex] = append(o.order[worldIndex], tableID)
	}
	o.tables[worldIndex][tableID] = table
}

// Table returns a stored table, or nil.
func (o *FileOutput) Table(worldIndex int, tableID string) *Table {
	return o.tables[worldIndex][tableID]
}

// AggregateBatches stores the batch summary table.
func (o *FileOutput) AggregateBatches(summaries []SeriesSummary) {
	o.aggregated = SummaryTable(summaries)
}

// Aggregated returns the stored batch summary table, or nil.
func (o *FileOutput) Aggregated() *Table { return o.aggregated }

// Save writes one file per stored table plus the aggregated summary, if any.
// Table ids become file names; multi-world runs prefix the world index.
func (o *FileOutput) Save(dir, format string) error {
	if format != "csv" && format != "gob" {
		return fmt.Errorf("output: unknown format %q", format)
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output: %w", err)
	}

	count := 0
	for _, world := range o.worlds {
		count += len(o.tables[world])
	}
	logrus.Debugf("Saving %dx output to %s", count, dir)

	for _, world := range o.worlds {
		for _, tableID := range o.order[world] {
			name := fileName(tableID)
			if len(o.worlds) > 1 {
				name = fmt.Sprintf("world%02d %s", world, name)
			}
			if err := writeTable(filepath.Join(dir, name+"."+format), format, o.tables[world][tableID]); err != nil {
				return err
			}
		}
	}
	if o.aggregated != nil {
		if err := writeTable(filepath.Join(dir, fileName(o.aggregated.Name)+"."+format), format, o.aggregated); err != nil {
			return err
		}
	}
	return nil
}

// fileName strips path separators out of a table id.
func fileName(tableID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		}
		return r
	}, tableID)
}

func writeTable(path, format string, table *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	defer f.Close()

	switch format {
	case "csv":
		wr := csv.NewWriter(f)
		if err := wr.Write(table.Columns); err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if err := wr.WriteAll(table.Rows); err != nil {
			return fmt.Errorf("output: %w", err)
		}
	case "gob":
		if err := gob.NewEncoder(f).Encode(table); err != nil {
			return fmt.Errorf("output: %w", err)
		}
	}
	return f.Close()
}

// runDirectory is where one run's artifacts land: a subdirectory of the
// output path named by the short form of the run id.
func runDirectory(outputPath, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(outputPath, "run-"+short)
}

// clearDirectory removes previously saved run directories, leaving unrelated
// files in the output path alone.
func clearDirectory(outputPath string) error {
	entries, err := os.ReadDir(outputPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "run-") {
			if err := os.RemoveAll(filepath.Join(outputPath, entry.Name())); err != nil {
				return fmt.Errorf("output: %w", err)
			}
		}
	}
	return nil
}

// ReadTableGob loads a gob-encoded table back from disk.
func ReadTableGob(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	defer f.Close()

	var table Table
	if err := gob.NewDecoder(f).Decode(&table); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	return &table, nil
}
