package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MimeLyc/jobrelay/internal/jobs"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

const maxFeedLine = 1 << 20

// FileFetcher reads candidate postings from a local file holding either a
// JSON array or one JSON object per line. A missing file yields no postings.
type FileFetcher struct {
	path string
}

func NewFileFetcher(path string) *FileFetcher {
	return &FileFetcher{path: path}
}

func (f *FileFetcher) Fetch(ctx context.Context) ([]jobs.Posting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("Feed file %s does not exist, nothing to fetch", f.path)
			return nil, nil
		}
		return nil, NewErrorWithCause(ErrFetch, "failed to read feed", err).WithContext("path", f.path)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var postings []jobs.Posting
		if err := json.Unmarshal(trimmed, &postings); err != nil {
			return nil, NewErrorWithCause(ErrFetch, "invalid feed array", err).WithContext("path", f.path)
		}
		return postings, nil
	}
	return f.parseLines(trimmed)
}

// parseLines skips malformed lines so one bad record does not hold back the
// rest of the feed.
func (f *FileFetcher) parseLines(data []byte) ([]jobs.Posting, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxFeedLine)

	var postings []jobs.Posting
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var p jobs.Posting
		if err := json.Unmarshal(line, &p); err != nil {
			log.Warn("Skipping malformed feed line %d in %s: %v", lineNo, f.path, err)
			continue
		}
		postings = append(postings, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, NewErrorWithCause(ErrFetch, fmt.Sprintf("failed to scan feed at line %d", lineNo), err).
			WithContext("path", f.path)
	}
	return postings, nil
}

// OutboxPublisher appends each posting as one JSON line and syncs the file
// before reporting success.
type OutboxPublisher struct {
	path string
	mu   sync.Mutex
}

func NewOutboxPublisher(path string) *OutboxPublisher {
	return &OutboxPublisher{path: path}
}

func (p *OutboxPublisher) Publish(ctx context.Context, posting jobs.Posting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(posting)
	if err != nil {
		return NewErrorWithCause(ErrPublish, "failed to encode posting", err)
	}
	line = append(line, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return NewErrorWithCause(ErrPublish, "failed to create outbox directory", err).WithContext("path", p.path)
	}
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return NewErrorWithCause(ErrPublish, "failed to open outbox", err).WithContext("path", p.path)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return NewErrorWithCause(ErrPublish, "failed to append to outbox", err).WithContext("path", p.path)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return NewErrorWithCause(ErrPublish, "failed to sync outbox", err).WithContext("path", p.path)
	}
	return f.Close()
}
