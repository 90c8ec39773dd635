package enum

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bodgit/sevenzip"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// MemberSeparator joins an archive path and a member path in target paths.
const MemberSeparator = "!"

// ErrMemberTooLarge marks a member that exceeds ExtractLimits.MaxMemberSize.
var ErrMemberTooLarge = errors.New("archive member too large")

// ExtractLimits bounds archive expansion.
type ExtractLimits struct {
	MaxMembers    int   // members per archive (0 = unlimited)
	MaxMemberSize int64 // uncompressed bytes per member (0 = unlimited)
	MaxTotalSize  int64 // uncompressed bytes per archive (0 = unlimited)
}

// DefaultExtractLimits returns the limits used by the CLI.
func DefaultExtractLimits() ExtractLimits {
	return ExtractLimits{
		MaxMembers:    10000,
		MaxMemberSize: 64 * 1024 * 1024,
		MaxTotalSize:  512 * 1024 * 1024,
	}
}

// ExtractedMember is one file read out of an archive.
type ExtractedMember struct {
	Name    string
	Content []byte
}

// ArchiveExpander wraps an enumerator and adds one in-memory target per
// member of every archive target. The archive itself is still scanned.
// Enumeration only lists members; an archive is extracted when the first of
// its members is opened, and each member's bytes are released once handed
// out.
type ArchiveExpander struct {
	inner   Enumerator
	formats map[string]bool
	limits  ExtractLimits

	// OnError is called when an archive cannot be read; the archive is then
	// scanned as a plain file. May be nil.
	OnError func(path string, err error)
}

// NewArchiveExpander wraps inner. formats is a comma-separated list of
// archive kinds (zip,jar,7z,tar,tgz) or "all".
func NewArchiveExpander(inner Enumerator, formats string, limits ExtractLimits) *ArchiveExpander {
	return &ArchiveExpander{
		inner:   inner,
		formats: parseFormats(formats),
		limits:  limits,
	}
}

// Enumerate returns the inner targets, each archive followed by its members.
func (a *ArchiveExpander) Enumerate(ctx context.Context) ([]types.Target, error) {
	targets, err := a.inner.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]types.Target, 0, len(targets))
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, t)

		kind := ArchiveKind(t.Path)
		if kind == "" || !a.formats[kind] {
			continue
		}

		content, err := targetContent(t)
		if err != nil {
			// Missing manifest files are reported by the scanner.
			continue
		}

		names, err := ListMembers(kind, content, a.limits)
		if err != nil && a.OnError != nil {
			a.OnError(t.DisplayPath(), err)
		}
		if len(names) == 0 {
			continue
		}

		src := &memberSource{kind: kind, limits: a.limits, load: contentLoader(t)}
		for i, name := range names {
			out = append(out, types.Target{
				Kind:    types.KindArchive,
				Path:    t.Path + MemberSeparator + name,
				Package: t.Package,
				Open:    src.opener(i),
			})
		}
	}
	return out, nil
}

func targetContent(t types.Target) ([]byte, error) {
	if t.InMemory() {
		return t.Load()
	}
	return os.ReadFile(t.FullPath)
}

func contentLoader(t types.Target) func() ([]byte, error) {
	return func() ([]byte, error) {
		return targetContent(t)
	}
}

// memberSource extracts one archive on first use and hands out each member
// once, by its index in the listing.
type memberSource struct {
	kind   string
	limits ExtractLimits
	load   func() ([]byte, error)

	once    sync.Once
	mu      sync.Mutex
	members []ExtractedMember
	taken   []bool
	err     error
}

func (s *memberSource) opener(i int) func() ([]byte, error) {
	return func() ([]byte, error) {
		return s.open(i)
	}
}

func (s *memberSource) open(i int) ([]byte, error) {
	s.once.Do(s.extract)

	s.mu.Lock()
	defer s.mu.Unlock()
	if i < len(s.members) && !s.taken[i] {
		s.taken[i] = true
		data := s.members[i].Content
		s.members[i].Content = nil
		return data, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, fmt.Errorf("archive member %d is no longer available", i)
}

func (s *memberSource) extract() {
	content, err := s.load()
	if err != nil {
		s.err = err
		return
	}
	s.members, s.err = ExtractMembers(s.kind, content, s.limits)
	s.taken = make([]bool, len(s.members))
}

// ArchiveKind classifies a path by extension, or returns "".
func ArchiveKind(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return "tgz"
	}
	switch filepath.Ext(lower) {
	case ".zip":
		return "zip"
	case ".jar", ".war", ".ear":
		return "jar"
	case ".7z":
		return "7z"
	case ".tar":
		return "tar"
	default:
		return ""
	}
}

// ExtractMembers reads the regular-file members of an archive. Members that
// exceed the limits are skipped; a partial list is returned with the error
// that stopped extraction, if any.
func ExtractMembers(kind string, content []byte, limits ExtractLimits) ([]ExtractedMember, error) {
	return extractMembers(kind, content, newCollector(limits))
}

// ListMembers returns the names ExtractMembers would return, in the same
// order, without keeping member content.
func ListMembers(kind string, content []byte, limits ExtractLimits) ([]string, error) {
	c := newCollector(limits)
	c.discard = true
	members, err := extractMembers(kind, content, c)
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names, err
}

func extractMembers(kind string, content []byte, c *collector) ([]ExtractedMember, error) {
	switch kind {
	case "zip", "jar":
		return extractZip(content, c)
	case "7z":
		return extract7z(content, c)
	case "tar":
		return extractTar(bytes.NewReader(content), c)
	case "tgz":
		gz, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		return extractTar(gz, c)
	default:
		return nil, fmt.Errorf("unsupported archive type: %s", kind)
	}
}

// ===========================================================================
// FORMATS
// ===========================================================================

func extractZip(content []byte, c *collector) ([]ExtractedMember, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if c.full() {
			break
		}
		if !c.fits(int64(f.UncompressedSize64)) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := c.read(rc)
		rc.Close()
		if err != nil {
			continue
		}
		c.add(f.Name, data)
	}
	return c.members, nil
}

func extract7z(content []byte, c *collector) ([]ExtractedMember, error) {
	zr, err := sevenzip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open 7z: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if c.full() {
			break
		}
		if !c.fits(int64(f.UncompressedSize)) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := c.read(rc)
		rc.Close()
		if err != nil {
			continue
		}
		c.add(f.Name, data)
	}
	return c.members, nil
}

func extractTar(r io.Reader, c *collector) ([]ExtractedMember, error) {
	tr := tar.NewReader(r)

	for !c.full() {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return c.members, fmt.Errorf("failed to read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !c.fits(hdr.Size) {
			continue
		}
		data, err := c.read(tr)
		if err != nil {
			continue
		}
		c.add(hdr.Name, data)
	}
	return c.members, nil
}

// ===========================================================================
// HELPERS
// ===========================================================================

// collector enforces ExtractLimits while members are read. With discard set
// it records names and sizes only.
type collector struct {
	limits  ExtractLimits
	discard bool
	skipped int64 // size of the last member consumed in discard mode
	total   int64
	members []ExtractedMember
}

func newCollector(limits ExtractLimits) *collector {
	return &collector{limits: limits}
}

func (c *collector) full() bool {
	return c.limits.MaxMembers > 0 && len(c.members) >= c.limits.MaxMembers
}

// fits checks a declared size against the member and total limits.
func (c *collector) fits(size int64) bool {
	if c.limits.MaxMemberSize > 0 && size > c.limits.MaxMemberSize {
		return false
	}
	if c.limits.MaxTotalSize > 0 && c.total+size > c.limits.MaxTotalSize {
		return false
	}
	return true
}

// read reads at most MaxMemberSize bytes; declared sizes are not trusted.
func (c *collector) read(r io.Reader) ([]byte, error) {
	if c.discard {
		return c.skip(r)
	}
	if c.limits.MaxMemberSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, c.limits.MaxMemberSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.limits.MaxMemberSize {
		return nil, ErrMemberTooLarge
	}
	return data, nil
}

// skip consumes a member like read and returns a placeholder of its length
// that add counts but does not keep.
func (c *collector) skip(r io.Reader) ([]byte, error) {
	src := r
	if c.limits.MaxMemberSize > 0 {
		src = io.LimitReader(r, c.limits.MaxMemberSize+1)
	}
	n, err := io.Copy(io.Discard, src)
	if err != nil {
		return nil, err
	}
	if c.limits.MaxMemberSize > 0 && n > c.limits.MaxMemberSize {
		return nil, ErrMemberTooLarge
	}
	c.skipped = n
	return nil, nil
}

func (c *collector) add(name string, data []byte) {
	if c.discard {
		c.total += c.skipped
		c.members = append(c.members, ExtractedMember{Name: name})
		return
	}
	c.total += int64(len(data))
	c.members = append(c.members, ExtractedMember{Name: name, Content: data})
}

// parseFormats splits a comma-separated format list.
func parseFormats(s string) map[string]bool {
	formats := make(map[string]bool)
	for _, f := range strings.Split(strings.ToLower(s), ",") {
		f = strings.TrimSpace(f)
		switch f {
		case "":
		case "all":
			for _, k := range []string{"zip", "jar", "7z", "tar", "tgz"} {
				formats[k] = true
			}
		case "tar.gz":
			formats["tgz"] = true
		default:
			formats[f] = true
		}
	}
	return formats
}
