package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

func writerOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("particle_x", "particle_y", "particle_w"),
		parquet.KeyValueMetadata("schema", Schema),
	}
}

// WriteActionsParquet writes rows to outPath through a temp file and rename.
func WriteActionsParquet(outPath string, rows []ActionRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writerOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// WriteBatchParquetAtomic writes a Parquet file into outDir/tmp and then
// moves it into outDir, so readers globbing outDir never see a partial file.
// The returned path is the final file path.
func WriteBatchParquetAtomic(outDir string, rows []ActionRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writerOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

// ReadActionRows loads every row of a file written by this package.
func ReadActionRows(path string) ([]ActionRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[ActionRow](pf)
	defer reader.Close()

	rows := make([]ActionRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows[:n], nil
}

// StreamActionRows reads path in chunks of up to batch rows and hands each
// chunk to fn. The slice passed to fn is reused between calls.
func StreamActionRows(path string, batch int, fn func([]ActionRow) error) error {
	if batch <= 0 {
		batch = 512
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return fmt.Errorf("open parquet %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[ActionRow](pf)
	defer reader.Close()

	buf := make([]ActionRow, batch)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if err := fn(buf[:n]); err != nil {
				return err
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return fmt.Errorf("read parquet %s: %w", path, readErr)
		}
	}
}

// ReadEpisode loads the rows of one episode from path, ordered by step.
func ReadEpisode(path, episodeID string) ([]ActionRow, error) {
	rows, err := ReadActionRows(path)
	if err != nil {
		return nil, err
	}
	out := EpisodeRows(rows, episodeID)
	if len(out) == 0 {
		return nil, fmt.Errorf("episode %s not found in %s", episodeID, path)
	}
	return out, nil
}
