package jobs

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/aatumaykin/ytharvest/internal/logger"
)

// JobsFilename is the default file name for the JSONL backend.
const JobsFilename = "jobs.jsonl"

// FileBackend stores one entry per line in a JSONL file. Every write
// rewrites the whole file through a temporary file and a rename, so a crash
// leaves either the old or the new content on disk.
type FileBackend struct {
	filePath string
	logger   *logger.Logger
}

// NewFileBackend creates a FileBackend writing to path.
func NewFileBackend(path string, log *logger.Logger) *FileBackend {
	if log == nil {
		log = logger.Discard()
	}
	return &FileBackend{filePath: path, logger: log}
}

// Path returns the file the backend writes to.
func (f *FileBackend) Path() string {
	return f.filePath
}

// Load reads all entries. A missing file yields no entries. Lines that fail
// to decode are logged and skipped.
func (f *FileBackend) Load(_ context.Context) ([]Entry, error) {
	file, err := os.Open(f.filePath)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		f.logger.Error("failed to open jobs file", err,
			logger.Field{Key: "file", Value: f.filePath})
		return nil, err
	}
	defer file.Close()

	entries := []Entry{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			f.logger.Error("failed to unmarshal job line", err,
				logger.Field{Key: "file", Value: f.filePath},
				logger.Field{Key: "line", Value: lineNum})
			continue
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		f.logger.Error("error scanning jobs file", err,
			logger.Field{Key: "file", Value: f.filePath})
		return nil, err
	}
	return entries, nil
}

// Put inserts or replaces the entry with the same id.
func (f *FileBackend) Put(ctx context.Context, entry Entry) error {
	entries, err := f.Load(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range entries {
		if entries[i].Spec.ID == entry.Spec.ID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}

	if err := f.save(entries); err != nil {
		return err
	}

	f.logger.Debug("job upserted to storage",
		logger.Field{Key: "job_id", Value: entry.Spec.ID},
		logger.Field{Key: "updated", Value: replaced})
	return nil
}

// Delete removes the entry with id. Deleting a missing id is not an error.
func (f *FileBackend) Delete(ctx context.Context, id string) error {
	entries, err := f.Load(ctx)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.Spec.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		f.logger.Warn("job not found for removal", logger.Field{Key: "job_id", Value: id})
		return nil
	}
	return f.save(kept)
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) save(entries []Entry) error {
	dir := filepath.Dir(f.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		f.logger.Error("failed to create storage directory", err,
			logger.Field{Key: "dir", Value: dir})
		return err
	}

	tmpPath := f.filePath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		f.logger.Error("failed to create temporary storage file", err,
			logger.Field{Key: "file", Value: tmpPath})
		return err
	}

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			file.Close()
			f.logger.Error("failed to encode job", err,
				logger.Field{Key: "job_id", Value: e.Spec.ID})
			return err
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		f.logger.Error("failed to sync temporary file", err,
			logger.Field{Key: "file", Value: tmpPath})
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, f.filePath); err != nil {
		f.logger.Error("failed to rename temporary file", err,
			logger.Field{Key: "from", Value: tmpPath},
			logger.Field{Key: "to", Value: f.filePath})
		return err
	}
	return nil
}
