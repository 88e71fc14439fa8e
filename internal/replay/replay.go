// Package replay manages the file of rejected statements that an operator
// can review and re-run after a migration.
package replay

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Terminator ends every statement in a replay file.
const Terminator = ";\n"

// File is an append-only replay file. It is safe for use from one
// goroutine at a time; the mutex only guards Close against late writes.
type File struct {
	mu    sync.Mutex
	path  string
	f     *os.File
	count int
}

// Create truncates (or creates) the replay file so that every run starts
// from an empty slate, creating parent directories as needed.
func Create(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating replay dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating replay file: %w", err)
	}
	return &File{path: path, f: f}, nil
}

// Path returns the file location.
func (r *File) Path() string { return r.path }

// Count returns the number of statements appended so far.
func (r *File) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Append writes stmt followed by the terminator. Each call is a single
// write so a crash never leaves half a statement behind.
func (r *File) Append(stmt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return fmt.Errorf("replay file %s is closed", r.path)
	}
	if _, err := io.WriteString(r.f, stmt+Terminator); err != nil {
		return fmt.Errorf("appending to replay file: %w", err)
	}
	r.count++
	return nil
}

// Close closes the file.
func (r *File) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// Read returns the statements of a replay file without their terminators.
// Blank lines and "--" comment lines are skipped.
func Read(rd io.Reader) ([]string, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	var stmts []string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		stmts = append(stmts, strings.TrimSuffix(line, ";"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading replay file: %w", err)
	}
	return stmts, nil
}

// ReadFile is Read on a path.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay file: %w", err)
	}
	defer f.Close()
	return Read(f)
}
