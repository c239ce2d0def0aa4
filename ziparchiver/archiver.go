package ziparchiver

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/adboost/adboostctl/asset"
	"github.com/adboost/adboostctl/fileutils"
	"github.com/adboost/adboostctl/ziparchiver/zipwriter"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"
)

const (
	DefaultPrefix = "adboost_"
	// Go layout for yyyyMMdd_HHmm.
	TimestampLayout = "20060102_1504"
)

var (
	ErrEmptyArchive       = errors.New("archive is empty")
	ErrArchiveTooLarge    = errors.New("archive size limit exceeded")
	ErrVerificationFailed = errors.New("archive verification failed")
)

type ArchiveDescriptor struct {
	Dir    string // Directory path.
	Prefix string // Defaults to DefaultPrefix when empty.
}

func (d ArchiveDescriptor) prefix() string {
	if d.Prefix == "" {
		return DefaultPrefix
	}
	return d.Prefix
}

// Pattern matches every archive name produced for this descriptor.
func (d ArchiveDescriptor) Pattern() string {
	return d.prefix() + "*.zip"
}

// ArchiveName returns the archive file name for prefix at t, in t's location.
func ArchiveName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s%s.zip", prefix, t.Format(TimestampLayout))
}

type Entry struct {
	Name    string // slash-separated path inside the archive
	Size    int64
	Hash    uint64
	ModTime time.Time
}

type PackResult struct {
	Path        string
	SourcePath  string
	Entries     []Entry
	Size        int64 // uncompressed bytes
	ArchiveSize int64
	Hash        uint64
	CreatedAt   time.Time
	DryRun      bool
}

func (r *PackResult) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", r.Path)
	e.Str("source", r.SourcePath)
	e.Int("files_count", len(r.Entries))
	e.Str("files_size", units.HumanSize(float64(r.Size)))
	if !r.DryRun {
		e.Str("archive_size", units.HumanSize(float64(r.ArchiveSize)))
		e.Str("hash", fileutils.FormatHash(r.Hash))
	}
}

// PackDirectory writes assets found under sourcePath into a single archive
// in dest. A previous archive with the same name is removed first. The
// written archive is verified to exist, be non-empty and hold every entry.
func PackDirectory(
	ctx context.Context,
	sourcePath string,
	dest ArchiveDescriptor,
	assets iter.Seq[asset.Asset],
	logger zerolog.Logger,
	opts ...PackOption,
) (*PackResult, error) {
	o := packOptions{clock: time.Now}
	for _, applyOpts := range opts {
		applyOpts(&o)
	}

	now := o.clock()
	archivePath := filepath.Join(dest.Dir, ArchiveName(dest.prefix(), now))

	logger = logger.With().Str("source", sourcePath).Str("archive", archivePath).Logger()
	logger.Info().Msg("packaging project")

	var zipFile *zipwriter.ZipFile
	if o.dryRun {
		zipFile = zipwriter.NewNullZipFile(archivePath)
	} else {
		if err := removeExisting(archivePath, logger); err != nil {
			return nil, err
		}
		zipFile = zipwriter.NewLazyZipFile(archivePath)
	}

	result := &PackResult{
		Path:       archivePath,
		SourcePath: sourcePath,
		CreatedAt:  now,
		DryRun:     o.dryRun,
	}

	fail := func(err error) (*PackResult, error) {
		if delErr := zipFile.Delete(); delErr != nil {
			logger.Warn().Err(delErr).Msg("could not remove partial archive")
		}
		return nil, err
	}

	for a := range assets {
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		// The limit itself is allowed.
		if o.maxArchiveBytes > 0 && result.Size+a.Size() > o.maxArchiveBytes {
			logger.Warn().
				Object("asset", a).
				Str("max_size", units.HumanSize(float64(o.maxArchiveBytes))).
				Msg("archive would exceed size limit")
			return fail(fmt.Errorf("%w: limit %d bytes", ErrArchiveTooLarge, o.maxArchiveBytes))
		}

		entry, err := writeAsset(zipFile, a, logger)
		if errors.Is(err, errSkipped) {
			continue
		}
		if err != nil {
			return fail(fmt.Errorf("could not add %s to archive: %w", a.RelPath(), err))
		}

		result.Entries = append(result.Entries, entry)
		result.Size += entry.Size
	}
	// The scan stops quietly on cancellation.
	if ctx.Err() != nil {
		return fail(ctx.Err())
	}

	if err := zipFile.Close(); err != nil {
		return fail(fmt.Errorf("could not close archive: %w", err))
	}

	if len(result.Entries) == 0 {
		return fail(ErrEmptyArchive)
	}

	if o.dryRun {
		logger.Info().Object("package", result).Msg("would create package (dry run)")
		return result, nil
	}

	if err := verifyArchive(result); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrVerificationFailed, err))
	}

	logger.Info().Object("package", result).Msg("package created")
	return result, nil
}

var errSkipped = errors.New("asset skipped")

func writeAsset(zipFile *zipwriter.ZipFile, a asset.Asset, logger zerolog.Logger) (Entry, error) {
	// Open before creating the header so that a vanished file leaves no
	// empty entry behind.
	reader, err := os.Open(a.Path())
	if err != nil {
		logger.Warn().Err(err).Object("asset", a).Msg("could not open asset, skipping")
		return Entry{}, errSkipped
	}
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close asset file")
		}
	}()

	header := &zip.FileHeader{
		Name:     a.RelPath(),
		Modified: a.ModTime(),
		Method:   zip.Deflate,
	}
	header.SetMode(0644)

	w, err := zipFile.CreateHeader(header)
	if err != nil {
		return Entry{}, err
	}

	counter := &countingWriter{w: w}
	h, err := fileutils.ComputeHash(io.TeeReader(reader, counter))
	if err != nil {
		return Entry{}, err
	}

	logger.Debug().Str("relative_path", header.Name).Int64("size", counter.n).Msg("asset archived")

	return Entry{
		Name:    header.Name,
		Size:    counter.n,
		Hash:    h,
		ModTime: a.ModTime(),
	}, nil
}

func removeExisting(path string, logger zerolog.Logger) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not stat existing archive: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("a directory already exists with the archive name: %s", path)
	}

	logger.Info().Msg("removing existing archive with the same name")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("could not remove existing archive: %w", err)
	}
	return nil
}

func verifyArchive(result *PackResult) error {
	size, err := fileutils.NonEmptyFile(result.Path)
	if err != nil {
		return err
	}

	names, err := ListEntries(result.Path)
	if err != nil {
		return err
	}
	if len(names) != len(result.Entries) {
		return fmt.Errorf("expected %d entries, found %d", len(result.Entries), len(names))
	}

	h, err := fileutils.ComputeFileHash(result.Path)
	if err != nil {
		return err
	}

	result.ArchiveSize = size
	result.Hash = h
	return nil
}

// ListEntries returns the names of the files stored in the archive at path.
func ListEntries(path string) ([]string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	return names, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// PackProject scans sourcePath and packs it into dest. Earlier archives
// matching dest's naming pattern are never included.
func PackProject(
	ctx context.Context,
	sourcePath string,
	dest ArchiveDescriptor,
	exclude []string,
	logger zerolog.Logger,
	opts ...PackOption,
) (*PackResult, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("could not open source path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path must be a directory: %s", sourcePath)
	}
	if dest.Dir == "" {
		dest.Dir = sourcePath
	}
	if err := fileutils.VerifyWritable(dest.Dir); err != nil {
		return nil, fmt.Errorf("dest path must be a writable directory: %w", err)
	}

	patterns := append([]string{dest.Pattern()}, exclude...)
	scanned, err := asset.ScanDirectory(ctx, sourcePath, logger, asset.WithExclude(patterns...))
	if err != nil {
		return nil, err
	}

	return PackDirectory(ctx, sourcePath, dest, scanned, logger, opts...)
}
