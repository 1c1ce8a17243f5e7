package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thestrul/sacks/internal/gridreader"
)

// PollOptions controls where a Poller looks for new files and where it
// stages them.
type PollOptions struct {
	FolderID    string
	DownloadDir string
	Interval    time.Duration
}

// Poller periodically lists a Drive folder and stages any file with a
// Grid-Reader-supported extension that hasn't been seen before, returning
// the staged local paths to the caller for processing through the same
// Orchestrator path as a local upload. Adapted from the teacher's
// watcher.go download loop, generalized from its PO-specific date/input
// subfolder convention to a flat single-folder poll, since xlsx/csv files
// no longer need pre-conversion (gridreader.Reader opens both directly).
type Poller struct {
	service *Service
	log     zerolog.Logger

	seen map[string]bool // fileID -> staged
}

// NewPoller builds a Poller over an authenticated Service.
func NewPoller(s *Service, log zerolog.Logger) *Poller {
	return &Poller{service: s, log: log.With().Str("component", "drive.Poller").Logger(), seen: make(map[string]bool)}
}

// PollOnce lists opts.FolderID and downloads any not-yet-seen supported
// file into opts.DownloadDir, returning the newly staged local paths.
func (p *Poller) PollOnce(ctx context.Context, opts PollOptions) ([]string, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("drive: download dir is required")
	}
	if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("drive: create download dir: %w", err)
	}

	files, err := p.service.ListFiles(opts.FolderID)
	if err != nil {
		return nil, err
	}

	var staged []string
	for _, f := range files {
		select {
		case <-ctx.Done():
			return staged, ctx.Err()
		default:
		}

		if f.MimeType == "application/vnd.google-apps.folder" {
			continue
		}
		if p.seen[f.ID] {
			continue
		}

		ext := strings.ToLower(filepath.Ext(f.Name))
		if !gridreader.SupportedExtensions[ext] {
			continue
		}

		localPath := filepath.Join(opts.DownloadDir, f.Name)
		out, err := os.Create(localPath)
		if err != nil {
			return staged, fmt.Errorf("drive: create local file %s: %w", localPath, err)
		}
		if err := p.service.DownloadFile(f.ID, out); err != nil {
			out.Close()
			return staged, fmt.Errorf("drive: download %s: %w", f.Name, err)
		}
		out.Close()

		p.seen[f.ID] = true
		staged = append(staged, localPath)
		p.log.Info().Str("file", f.Name).Str("path", localPath).Msg("staged drive file")
	}

	return staged, nil
}

// Run polls every opts.Interval until ctx is canceled, invoking onStaged
// with each batch of newly staged local paths.
func (p *Poller) Run(ctx context.Context, opts PollOptions, onStaged func([]string)) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			staged, err := p.PollOnce(ctx, opts)
			if err != nil {
				p.log.Warn().Err(err).Msg("drive poll failed")
				continue
			}
			if len(staged) > 0 {
				onStaged(staged)
			}
		}
	}
}
