package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/MimeLyc/jobrelay/pkg/file"
)

// TempSuffix names the staging file written before the rename.
const TempSuffix = ".tmp"

// ErrVerification marks a write whose read-back did not match what was written.
// Callers must not keep operating on the in-memory state after seeing it.
var ErrVerification = errors.New("read-back verification failed")

// Seams for crash-safety tests.
var (
	renameFile = os.Rename
	readBack   = ReadIDs
)

// NormalizeIDs returns a sorted copy of ids with duplicates and empty strings removed.
func NormalizeIDs(ids []string) []string {
	ret := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			ret = append(ret, id)
		}
	}
	slices.Sort(ret)
	return slices.Compact(ret)
}

// ReadIDs reads a JSON array of identifiers. A missing file is reported with
// an error satisfying os.IsNotExist.
func ReadIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	return ids, nil
}

// WriteIDs atomically replaces path with the sorted, deduplicated ids.
//
// The data goes to a sibling temp file which is fsynced and renamed over path,
// then path is re-read and its length compared with what was written. Until
// the rename succeeds the previous file is untouched. It returns the number of
// identifiers written.
func WriteIDs(path string, ids []string) (int, error) {
	normalized := NormalizeIDs(ids)
	content, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return 0, errors.Wrap(err, "marshal ids")
	}
	content = append(content, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrapf(err, "create directory %s", dir)
	}

	tmpPath := path + TempSuffix
	if err := writeSynced(tmpPath, content); err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := renameFile(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "rename %s", filepath.Base(tmpPath))
	}
	if err := file.SyncDir(dir); err != nil {
		return 0, errors.Wrapf(err, "sync directory %s", dir)
	}

	got, err := readBack(path)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "re-read %s", filepath.Base(path)), ErrVerification)
	}
	if len(got) != len(normalized) {
		return 0, errors.Mark(
			errors.Newf("%s holds %d ids, expected %d", filepath.Base(path), len(got), len(normalized)),
			ErrVerification,
		)
	}
	return len(normalized), nil
}

func writeSynced(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create %s", filepath.Base(path))
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", filepath.Base(path))
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "sync %s", filepath.Base(path))
	}
	return errors.Wrapf(f.Close(), "close %s", filepath.Base(path))
}
