package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
)

// BatchWriter streams action rows into one parquet file and publishes it on
// Finalize. While open the file lives at <outDir>/tmp/<name>.tmp, a name the
// DuckDB glob never matches, so a half-written batch is never queried.
//
// Episodes are counted by distinct EpisodeID, so an episode may be split
// across several WriteRows calls.
type BatchWriter struct {
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[ActionRow]

	episodes map[string]struct{}
	rows     int
}

func NewBatchWriter(outDir string) (*BatchWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	b := &BatchWriter{
		tmpPath:  filepath.Join(tmpDir, name+".tmp"),
		outPath:  filepath.Join(absOut, name),
		episodes: make(map[string]struct{}),
	}
	b.file, err = os.OpenFile(b.tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}
	b.writer = parquet.NewGenericWriter[ActionRow](b.file, writerOptions()...)
	return b, nil
}

func (b *BatchWriter) TmpPath() string       { return b.tmpPath }
func (b *BatchWriter) OutPath() string       { return b.outPath }
func (b *BatchWriter) BufferedEpisodes() int { return len(b.episodes) }
func (b *BatchWriter) BufferedRows() int     { return b.rows }

func (b *BatchWriter) closed() bool { return b.writer == nil || b.file == nil }

// WriteRows appends rows. The slice may be reused by the caller afterwards.
func (b *BatchWriter) WriteRows(rows []ActionRow) error {
	if b.closed() {
		return fmt.Errorf("batch writer is closed")
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := b.writer.Write(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	for i := range rows {
		b.episodes[rows[i].EpisodeID] = struct{}{}
	}
	b.rows += len(rows)
	return nil
}

// WriteEpisode writes every row of one finished episode.
func (b *BatchWriter) WriteEpisode(rows []ActionRow) error {
	if len(rows) > 0 {
		id := rows[0].EpisodeID
		for i := range rows {
			if rows[i].EpisodeID != id {
				return fmt.Errorf("episode rows mix ids %q and %q", id, rows[i].EpisodeID)
			}
		}
	}
	return b.WriteRows(rows)
}

func (b *BatchWriter) close() error {
	var closeErr, fileErr error
	if b.writer != nil {
		closeErr = b.writer.Close()
		b.writer = nil
	}
	if b.file != nil {
		_ = b.file.Sync()
		fileErr = b.file.Close()
		b.file = nil
	}
	if closeErr != nil {
		return fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return fmt.Errorf("close parquet file: %w", fileErr)
	}
	return nil
}

// Finalize closes the writer and renames the batch into outDir. With no rows
// the tmp file is removed and outPath is empty. Calling it twice is a no-op.
func (b *BatchWriter) Finalize() (outPath string, rows int, episodes int, err error) {
	if b.writer == nil && b.file == nil {
		return "", 0, 0, nil
	}
	if err := b.close(); err != nil {
		_ = os.Remove(b.tmpPath)
		return "", 0, 0, err
	}
	if b.rows == 0 {
		_ = os.Remove(b.tmpPath)
		return "", 0, 0, nil
	}
	if err := os.Rename(b.tmpPath, b.outPath); err != nil {
		return "", 0, 0, fmt.Errorf("rename parquet: %w", err)
	}
	return b.outPath, b.rows, len(b.episodes), nil
}

// Abort discards everything written so far.
func (b *BatchWriter) Abort() error {
	err := b.close()
	if rmErr := os.Remove(b.tmpPath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
