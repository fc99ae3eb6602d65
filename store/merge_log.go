package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MergeLog is an append-only list of batch files that have already been
// folded into a compacted batch, one path per line. A torn final line from a
// crash is read back as an unknown path and that input is merged again.
type MergeLog struct {
	mu     sync.RWMutex
	file   *os.File
	merged map[string]struct{}
}

func OpenMergeLog(path string) (*MergeLog, error) {
	if path == "" {
		return nil, fmt.Errorf("merge log path is required")
	}

	merged := make(map[string]struct{})
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			p := strings.TrimSpace(scanner.Text())
			if p != "" {
				merged[p] = struct{}{}
			}
		}
		_ = f.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create merge log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open merge log: %w", err)
	}
	return &MergeLog{file: file, merged: merged}, nil
}

func (l *MergeLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *MergeLog) Has(path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.merged[path]
	return ok
}

func (l *MergeLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.merged)
}

// AddMany appends paths not yet recorded and syncs once.
func (l *MergeLog) AddMany(paths []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("merge log is closed")
	}

	added := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := l.merged[p]; ok {
			continue
		}
		if _, err := l.file.WriteString(p + "\n"); err != nil {
			return fmt.Errorf("append merge log: %w", err)
		}
		l.merged[p] = struct{}{}
		added++
	}
	if added == 0 {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync merge log: %w", err)
	}
	return nil
}
