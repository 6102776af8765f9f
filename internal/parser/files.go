package parser

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OldStager01/packet-anomaly/internal/logger"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

type Config struct {
	// SkipInvalidFiles drops a file whose payload cannot be decoded instead
	// of failing the whole parse.
	SkipInvalidFiles bool
}

// FileStat summarizes what a single input file contributed.
type FileStat struct {
	Path    string `json:"path"`
	Records int    `json:"records"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type Result struct {
	Records []models.LogRecord
	Files   []FileStat
}

type Parser struct {
	config Config
}

func New(cfg Config) *Parser {
	return &Parser{config: cfg}
}

// ParseFiles parses every path in order and concatenates the records. Paths
// that do not exist are skipped with a warning.
func (p *Parser) ParseFiles(ctx context.Context, paths []string) (*Result, error) {
	var raw []models.RawRecord
	result := &Result{}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := p.parseFile(path)
		stat := FileStat{Path: path, Records: len(records)}

		switch {
		case err == nil:
			raw = append(raw, records...)

		case errors.Is(err, fs.ErrNotExist):
			logger.WithField("path", path).Warn("Input file not found, skipping")
			stat.Skipped = true
			stat.Reason = "not found"

		case errors.Is(err, ErrMalformedPayload) && p.config.SkipInvalidFiles:
			logger.WithField("path", path).Warnf("Dropping file: %v", err)
			stat.Skipped = true
			stat.Reason = err.Error()

		default:
			return nil, err
		}

		result.Files = append(result.Files, stat)
	}

	result.Records = models.ResolveAll(raw)
	return result, nil
}

func (p *Parser) parseFile(path string) ([]models.RawRecord, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	records, err := Parse(rc)
	if err != nil {
		var perr *PayloadError
		if errors.As(err, &perr) {
			perr.File = path
			return nil, perr
		}
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	logger.Debugf("Parsed %d records from %s", len(records), path)
	return records, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	g.Reader.Close()
	return g.file.Close()
}

// Open returns a reader for a capture log, decompressing .gz files.
func Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if !strings.HasSuffix(path, ".gz") {
		return file, nil
	}

	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
	}
	return &gzipFile{Reader: gz, file: file}, nil
}

// Discover expands directories and glob patterns into a file list. Argument
// order is kept; entries produced by one argument are sorted by name. The
// inputs are one logical concatenation, so a file named twice is read twice.
// Plain paths are passed through even if missing so ParseFiles can report them.
func Discover(args []string) ([]string, error) {
	var paths []string

	for _, arg := range args {
		if strings.ContainsAny(arg, "*?[") {
			matches, err := filepath.Glob(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
			}
			sort.Strings(matches)
			paths = append(paths, matches...)
			continue
		}

		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", arg, err)
		}
		// os.ReadDir already returns entries sorted by filename
		for _, entry := range entries {
			if !entry.IsDir() {
				paths = append(paths, filepath.Join(arg, entry.Name()))
			}
		}
	}

	return paths, nil
}
