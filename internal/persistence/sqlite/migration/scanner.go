package migration

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// BreakpointMarker separates statements that must run on their own.
const BreakpointMarker = "--> statement-breakpoint"

const createdHeader = "-- Created:"

// migrationFilePattern matches {version}_{description}.sql. The version is
// numeric; the description may contain letters, digits, underscores and
// hyphens.
var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// SourceFile is one migration file read from a migration directory.
type SourceFile struct {
	Version     int
	Description string
	Path        string
	SQL         string
	Created     time.Time
}

// Compile reads every migration file in dir, orders them by version and
// produces a log whose hashes are cumulative over all earlier files.
func Compile(dir string) (Log, error) {
	files, err := ScanDir(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, NewFileSystemError(dir, "scan directory", fmt.Errorf("%w: no migration files found", ErrInvalidMigrationFile))
	}
	return Build(files), nil
}

// ScanDir reads the migration files in dir sorted by version.
func ScanDir(dir string) ([]SourceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewFileSystemError(dir, "read directory", err)
	}

	var files []SourceFile
	seen := make(map[int]string)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		file, err := parseFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if existing, ok := seen[file.Version]; ok {
			return nil, fmt.Errorf("%w: version %d found in both %s and %s",
				ErrDuplicateVersion, file.Version, existing, entry.Name())
		}
		seen[file.Version] = entry.Name()
		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Version < files[j].Version
	})
	return files, nil
}

// Build turns ordered source files into a log. Folder times are forced to be
// strictly increasing so the batch executor can order steps by them.
func Build(files []SourceFile) Log {
	log := make(Log, 0, len(files))
	previous := ""
	var lastMillis int64

	for _, file := range files {
		millis := file.Created.UnixMilli()
		if millis <= lastMillis {
			millis = lastMillis + 1
		}
		lastMillis = millis

		statements, breakpoints := splitStatements(file.SQL)
		previous = chainHash(previous, file.SQL)

		log = append(log, Step{
			SQL:          statements,
			Breakpoints:  breakpoints,
			FolderMillis: millis,
			Hash:         previous,
		})
	}
	return log
}

// ValidateFileName checks if a migration file follows the naming convention
func ValidateFileName(filename string) error {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return fmt.Errorf("%w: filename '%s' does not match pattern '{version}_{description}.sql'",
			ErrInvalidMigrationFile, filename)
	}
	if _, err := strconv.Atoi(matches[1]); err != nil {
		return fmt.Errorf("%w: version '%s' in filename '%s' is not a valid number",
			ErrInvalidVersion, matches[1], filename)
	}
	return nil
}

func parseFile(path string) (SourceFile, error) {
	filename := filepath.Base(path)
	if err := ValidateFileName(filename); err != nil {
		return SourceFile{}, NewFileSystemError(path, "validate filename", err)
	}
	matches := migrationFilePattern.FindStringSubmatch(filename)
	version, _ := strconv.Atoi(matches[1])

	info, err := os.Stat(path)
	if err != nil {
		return SourceFile{}, NewFileSystemError(path, "stat file", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return SourceFile{}, NewFileSystemError(path, "read file", err)
	}

	content := string(raw)
	if strings.TrimSpace(content) == "" {
		return SourceFile{}, NewFileSystemError(path, "validate content",
			fmt.Errorf("%w: migration file is empty", ErrInvalidMigrationFile))
	}

	created := info.ModTime()
	if header, ok := extractCreated(content); ok {
		created = header
	}

	return SourceFile{
		Version:     version,
		Description: strings.ReplaceAll(matches[2], "_", " "),
		Path:        path,
		SQL:         content,
		Created:     created,
	}, nil
}

// extractCreated reads a "-- Created: <RFC3339 | unix millis>" line from the
// leading comment block.
func extractCreated(content string) (time.Time, bool) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		if !strings.HasPrefix(line, createdHeader) {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, createdHeader))
		if ts, err := time.Parse(time.RFC3339, value); err == nil {
			return ts, true
		}
		if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.UnixMilli(millis), true
		}
	}
	return time.Time{}, false
}

// splitStatements cuts a file on breakpoint markers. Without markers the whole
// file is a single statement.
func splitStatements(content string) ([]string, bool) {
	parts := strings.Split(content, BreakpointMarker)
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements, len(parts) > 1
}

func chainHash(previous, content string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(previous))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
