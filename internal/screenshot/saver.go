// Package screenshot persists rendered frames to disk and periodically
// sweeps them into a dated archive so the live folder stays small enough
// to browse over sftp.
package screenshot

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mrjrask/desk-display/pkg/logx"
)

// defaultFolder receives root-level captures that carry no screen folder.
const defaultFolder = "Screens"

type Config struct {
	// Dir is the live capture directory.
	Dir string
	// ArchiveDir receives swept batches. Defaults to
	// <Dir>/../screenshot_archive/dated_folders.
	ArchiveDir string
	// ArchiveThreshold is the live image count that triggers a sweep.
	ArchiveThreshold int
}

// ArchiveRecorder is notified once per swept screen folder.
type ArchiveRecorder interface {
	ArchiveBatch(ctx context.Context, screen string, moved int, dest string)
}

type Saver struct {
	cfg Config
	log logx.Logger
	rec ArchiveRecorder

	mu  sync.Mutex // serializes archive sweeps
	now func() time.Time
}

func NewSaver(cfg Config, log logx.Logger, rec ArchiveRecorder) (*Saver, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("screenshot dir required")
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = filepath.Join(filepath.Dir(cfg.Dir), "screenshot_archive", "dated_folders")
	}
	if cfg.ArchiveThreshold <= 0 {
		cfg.ArchiveThreshold = 500
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Saver{cfg: cfg, log: log, rec: rec, now: time.Now}, nil
}

// Save writes one frame as <dir>/<screen folder>/<prefix>_<timestamp>.png.
func (s *Saver) Save(id string, img image.Image) error {
	ts := s.now().Format("20060102_150405")
	dir := filepath.Join(s.cfg.Dir, sanitizeDirName(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", sanitizeFilePrefix(id), ts))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// MaybeArchive sweeps the live folder into the dated archive when it holds
// at least ArchiveThreshold images. The archive mirrors the live layout:
// <archive>/<screen>/YYYYMMDD/HHMMSS/<filename>. Batch folders that end up
// empty are removed.
func (s *Saver) MaybeArchive(ctx context.Context) {
	files := s.listCaptures()
	if len(files) < s.cfg.ArchiveThreshold {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Recheck under the lock; a concurrent sweep may have drained the folder.
	files = s.listCaptures()
	if len(files) < s.cfg.ArchiveThreshold {
		return
	}

	now := s.now()
	dayStamp := now.Format("20060102")
	timeStamp := now.Format("150405")

	movedPerScreen := map[string]int{}
	batchDirs := map[string]string{} // screen -> batch dir
	totalMoved := 0

	for _, rel := range files {
		if ctx.Err() != nil {
			break
		}
		screen := defaultFolder
		remainder := rel
		if i := strings.IndexByte(rel, filepath.Separator); i >= 0 {
			screen = rel[:i]
			remainder = rel[i+1:]
		}
		batchDir := filepath.Join(s.cfg.ArchiveDir, screen, dayStamp, timeStamp)
		dest := filepath.Join(batchDir, remainder)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			s.log.Warn("archive mkdir failed", logx.String("file", rel), logx.Err(err))
			continue
		}
		if err := os.Rename(filepath.Join(s.cfg.Dir, rel), dest); err != nil {
			s.log.Warn("archive move failed", logx.String("file", rel), logx.Err(err))
			continue
		}
		movedPerScreen[screen]++
		batchDirs[screen] = batchDir
		totalMoved++
	}

	if totalMoved == 0 {
		for _, dir := range batchDirs {
			_ = os.RemoveAll(dir)
		}
		return
	}

	s.log.Info("archived screenshots",
		logx.Int("moved", totalMoved),
		logx.String("day", dayStamp),
		logx.String("batch", timeStamp),
	)
	if s.rec != nil {
		for screen, n := range movedPerScreen {
			s.rec.ArchiveBatch(ctx, screen, n, batchDirs[screen])
		}
	}
}

// listCaptures returns live png paths relative to the capture dir, sorted.
func (s *Saver) listCaptures() []string {
	var out []string
	_ = filepath.WalkDir(s.cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".png") {
			return nil
		}
		if rel, err := filepath.Rel(s.cfg.Dir, path); err == nil {
			out = append(out, rel)
		}
		return nil
	})
	sort.Strings(out)
	return out
}

// sanitizeDirName keeps spaces but strips path separators and anything
// outside alphanumerics, space, dash and underscore.
func sanitizeDirName(name string) string {
	safe := strings.TrimSpace(name)
	safe = strings.ReplaceAll(safe, "/", "-")
	safe = strings.ReplaceAll(safe, "\\", "-")
	var b strings.Builder
	for _, r := range safe {
		if isAlnum(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return defaultFolder
	}
	return b.String()
}

func sanitizeFilePrefix(name string) string {
	safe := strings.TrimSpace(name)
	safe = strings.ReplaceAll(safe, "/", "-")
	safe = strings.ReplaceAll(safe, "\\", "-")
	safe = strings.ReplaceAll(safe, " ", "_")
	var b strings.Builder
	for _, r := range safe {
		if isAlnum(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "screen"
	}
	return b.String()
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
