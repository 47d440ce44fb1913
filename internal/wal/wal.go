// Package wal is the request journal: every accepted request body is
// appended, fsynced, before it is decoded, so a crashed or disputed run can
// be replayed.
package wal

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fractal-lba/quantcore/pkg/canonical"
)

const (
	filePrefix = "requests-"
	fileSuffix = ".wal"
	maxLine    = 64 << 20
)

// Entry is one journaled request.
type Entry struct {
	Timestamp time.Time
	Op        string
	Body      []byte
}

// Journal appends request bodies to a daily file. Lines are
// timestamp|op|length|base64(body)|signature; the signature is an
// HMAC-SHA256 of the body and is empty when no key is configured.
type Journal struct {
	mu   sync.Mutex
	dir  string
	key  []byte
	day  string
	path string
	file *os.File
}

// Open creates dir if needed and opens today's journal file.
func Open(dir string, key []byte) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	j := &Journal{dir: dir, key: key}
	if err := j.openDay(time.Now()); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) openDay(now time.Time) error {
	day := now.UTC().Format("20060102")
	path := filepath.Join(j.dir, filePrefix+day+fileSuffix)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	j.day, j.path, j.file = day, path, file
	return nil
}

// Path returns the file currently written to.
func (j *Journal) Path() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.path
}

// Append writes one request and fsyncs. It switches to a new file when the
// UTC day has changed since the last write.
func (j *Journal) Append(op string, body []byte) error {
	if strings.Contains(op, "|") {
		return fmt.Errorf("invalid journal op %q", op)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	if now.UTC().Format("20060102") != j.day {
		if err := j.rotateLocked(now); err != nil {
			return err
		}
	}

	sig := ""
	if len(j.key) > 0 {
		sig = canonical.SignBytes(body, j.key)
	}
	line := fmt.Sprintf("%s|%s|%d|%s|%s\n",
		now.UTC().Format(time.RFC3339Nano), op, len(body),
		base64.StdEncoding.EncodeToString(body), sig)

	if _, err := j.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	return nil
}

// Rotate closes the current file and opens the file for the current day.
// It returns the path of the closed file.
func (j *Journal) Rotate() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	old := j.path
	return old, j.rotateLocked(time.Now())
}

func (j *Journal) rotateLocked(now time.Time) error {
	if err := j.closeLocked(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return j.openDay(now)
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeLocked()
}

func (j *Journal) closeLocked() error {
	if j.file == nil {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return err
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// ReplayStats counts what Replay skipped.
type ReplayStats struct {
	Read      int
	Malformed int
	BadSig    int
}

// ErrSignatureRequired is returned when a key is given but a line carries
// no signature.
var ErrSignatureRequired = errors.New("journal entry is unsigned")

// Replay reads every entry of one journal file. Malformed lines are
// skipped. With a non-empty key, lines whose signature does not verify are
// skipped too. A missing file yields no entries.
func Replay(path string, key []byte) ([]Entry, ReplayStats, error) {
	var stats ReplayStats
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, stats, nil
		}
		return nil, stats, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		stats.Read++
		e, err := parseLine(scanner.Text(), key)
		switch {
		case errors.Is(err, canonical.ErrInvalidSignature), errors.Is(err, ErrSignatureRequired):
			stats.BadSig++
			continue
		case err != nil:
			stats.Malformed++
			continue
		}
		entries = append(entries, e)
	}
	return entries, stats, scanner.Err()
}

func parseLine(line string, key []byte) (Entry, error) {
	parts := strings.Split(line, "|")
	if len(parts) != 5 {
		return Entry{}, fmt.Errorf("want 5 fields, got %d", len(parts))
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Entry{}, err
	}
	length, err := strconv.Atoi(parts[2])
	if err != nil {
		return Entry{}, err
	}
	body, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return Entry{}, err
	}
	if len(body) != length {
		return Entry{}, fmt.Errorf("length %d does not match body of %d bytes", length, len(body))
	}
	if len(key) > 0 {
		if parts[4] == "" {
			return Entry{}, ErrSignatureRequired
		}
		if err := canonical.VerifyBytes(body, parts[4], key); err != nil {
			return Entry{}, canonical.ErrInvalidSignature
		}
	}
	return Entry{Timestamp: ts, Op: parts[1], Body: body}, nil
}

// Files lists the journal files in dir, oldest first.
func Files(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
