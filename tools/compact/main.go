// Command compact merges many small episode batches into one parquet file.
//
// The executor flushes a batch every few dozen episodes, so long runs leave
// thousands of small files behind. DuckDB scans fewer, larger files faster.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/brensch/seek/store"
)

func main() {
	inDir := flag.String("in-dir", "data/episodes", "Directory containing episode parquet batches")
	outDir := flag.String("out-dir", "data/compacted", "Output directory for the merged batch")
	deleteInputs := flag.Bool("delete-inputs", false, "Remove input files once the merged batch is in place")
	logPath := flag.String("merge-log", "", "Append-only list of inputs already merged (default <out-dir>/merged.log)")
	flag.Parse()

	absIn, err := filepath.Abs(*inDir)
	if err != nil {
		die("abs in-dir: %v", err)
	}
	absOut, err := filepath.Abs(*outDir)
	if err != nil {
		die("abs out-dir: %v", err)
	}
	if absIn == absOut {
		die("out-dir must be different from in-dir")
	}

	if *logPath == "" {
		*logPath = filepath.Join(absOut, "merged.log")
	}
	mergeLog, err := store.OpenMergeLog(*logPath)
	if err != nil {
		die("open merge log: %v", err)
	}
	defer mergeLog.Close()

	found, err := findInputs(absIn)
	if err != nil {
		die("walk in-dir: %v", err)
	}
	inputs := make([]string, 0, len(found))
	for _, in := range found {
		if !mergeLog.Has(in) {
			inputs = append(inputs, in)
		}
	}
	if len(inputs) == 0 {
		fmt.Fprintf(os.Stderr, "nothing to merge in %s (%d already merged)\n", absIn, mergeLog.Count())
		return
	}

	res, err := compact(inputs, absOut)
	if err != nil {
		die("compact: %v", err)
	}
	fmt.Fprintf(os.Stderr, "done: %s (inputs=%d failed=%d rows=%d episodes=%d)\n", res.outPath, len(inputs), len(res.failed), res.rows, res.episodes)
	if res.outPath != "" {
		if err := mergeLog.AddMany(res.merged); err != nil {
			fmt.Fprintf(os.Stderr, "merge log: %v\n", err)
		}
	}

	if *deleteInputs && res.outPath != "" {
		for _, in := range res.merged {
			if err := os.Remove(in); err != nil {
				fmt.Fprintf(os.Stderr, "remove %s: %v\n", in, err)
			}
		}
	}
	if len(res.failed) > 0 {
		mergeLog.Close()
		os.Exit(1)
	}
}

type result struct {
	outPath  string
	rows     int
	episodes int
	merged   []string
	failed   []string
}

func findInputs(root string) ([]string, error) {
	inputs := make([]string, 0, 1024)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			inputs = append(inputs, path)
		}
		return nil
	})
	return inputs, err
}

// compact streams every input into a single BatchWriter. Inputs that fail to
// read are reported and skipped; rows already copied from them are kept.
func compact(inputs []string, outDir string) (result, error) {
	w, err := store.NewBatchWriter(outDir)
	if err != nil {
		return result{}, err
	}

	var res result
	for i, in := range inputs {
		err := store.StreamActionRows(in, 512, w.WriteRows)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", in, err)
			res.failed = append(res.failed, in)
			continue
		}
		res.merged = append(res.merged, in)
		if (i+1)%100 == 0 {
			fmt.Fprintf(os.Stderr, "merged %d/%d...\n", i+1, len(inputs))
		}
	}

	if len(res.merged) == 0 {
		return res, w.Abort()
	}
	outPath, rows, episodes, err := w.Finalize()
	if err != nil {
		return result{}, err
	}
	res.outPath = outPath
	res.rows = rows
	res.episodes = episodes
	return res, nil
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}
