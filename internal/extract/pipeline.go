package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/yonagi/mailharvest/internal/gmail"
	"github.com/yonagi/mailharvest/internal/instrumentation"
	"github.com/yonagi/mailharvest/internal/logging"
	"github.com/yonagi/mailharvest/internal/pathsafe"
	"github.com/yonagi/mailharvest/internal/store"
)

// DefaultQuery is the search filter used when the caller supplies none:
// attachment-bearing mail within a fixed date window.
const DefaultQuery = "has:attachment after:2024/01/01 before:2025/01/01"

// sentAtLayout renders timestamps with a numeric UTC offset, so the same
// (sender, time, filename) tuple always maps to the same path.
const sentAtLayout = "2006-01-02T15:04:05-07:00"

// MailService is the slice of the mailbox API the pipeline consumes.
// *gmail.Client satisfies it; tests substitute a fake.
type MailService interface {
	ForeachMessage(ctx context.Context, query string, fn func(*gmailapi.Message) error) error
	GetMessage(ctx context.Context, messageID string) (*gmailapi.Message, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Options carries the per-run parameters shared by all stages.
type Options struct {
	// OutputDir is the root of the fan-out tree.
	OutputDir string
	// Query overrides DefaultQuery when non-empty. Only the extract
	// stage reads it.
	Query string
	// Clean removes the entire output root before extraction.
	Clean bool
}

func (o Options) query() string {
	if o.Query != "" {
		return o.Query
	}
	return DefaultQuery
}

// Stats accumulates the per-run accounting the operator sees.
type Stats struct {
	Messages         int // messages fully processed
	MessagesVanished int // deleted between list and fetch
	MessagesBadDate  int // skipped due to unparsable Date header

	Written     int
	Excluded    int
	UnsafePaths int
	WriteErrors int

	FilesRemoved int // filter-unwanted stage
	DirsRemoved  int // prune-empty-dirs stage
}

// Pipeline orchestrates query → per-message decode → per-attachment
// fetch → filter → write. It is strictly sequential: each remote call
// blocks until it returns, and the output tree has no other writer.
type Pipeline struct {
	mail    MailService
	fs      store.Store
	filter  *ExclusionFilter
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewPipeline wires a pipeline. A nil filter means the default exclusion
// set; a nil logger means slog.Default(); nil metrics disable recording.
func NewPipeline(mail MailService, fs store.Store, filter *ExclusionFilter, logger *slog.Logger, metrics *instrumentation.Metrics) *Pipeline {
	if filter == nil {
		filter = NewExclusionFilter(DefaultExclusions())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		mail:    mail,
		fs:      fs,
		filter:  filter,
		logger:  logger,
		metrics: metrics,
	}
}

// DestinationPath computes the fan-out path for one attachment:
// {root}/{sender_address}/{sent_at}_{filename}. It is a pure function of
// its inputs; identical inputs always yield an identical path.
func DestinationPath(root, senderAddress string, sentAt time.Time, filename string) string {
	return filepath.Join(root, senderAddress, sentAt.Format(sentAtLayout)+"_"+filename)
}

// Extract runs the end-to-end extraction: enumerate matching messages,
// decode each, fetch every attachment-bearing part, filter, and fan the
// bytes out under the sender's subdirectory. A vanished message, an
// unparsable date, an unsafe filename, an excluded filename, or a failed
// write each skip their own scope and the run continues.
func (p *Pipeline) Extract(ctx context.Context, opts Options) (*Stats, error) {
	logger := logging.WithStage(p.logger, StageExtract)

	if opts.Clean && p.fs.Exists(opts.OutputDir) {
		if err := p.fs.RemoveAll(opts.OutputDir); err != nil {
			return nil, fmt.Errorf("failed to clean output root: %w", err)
		}
		logger.Info("cleaned output root", slog.String(logging.KeyPath, opts.OutputDir))
	}
	if err := p.fs.MakeDirs(opts.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output root: %w", err)
	}

	stats := &Stats{}
	query := opts.query()
	logger.Info("starting extraction", slog.String(logging.KeyQuery, query))

	err := p.mail.ForeachMessage(ctx, query, func(summary *gmailapi.Message) error {
		return p.processMessage(ctx, logger, opts.OutputDir, summary.Id, stats)
	})
	if err != nil {
		return stats, err
	}

	logger.Info("extraction complete",
		slog.Int("messages", stats.Messages),
		slog.Int("messages_vanished", stats.MessagesVanished),
		slog.Int("messages_bad_date", stats.MessagesBadDate),
		slog.Int("written", stats.Written),
		slog.Int("excluded", stats.Excluded),
		slog.Int("unsafe_paths", stats.UnsafePaths),
		slog.Int("write_errors", stats.WriteErrors),
	)
	return stats, nil
}

func (p *Pipeline) processMessage(ctx context.Context, logger *slog.Logger, root, messageID string, stats *Stats) error {
	start := time.Now()
	msg, err := p.mail.GetMessage(ctx, messageID)
	p.metrics.RecordAPIOperation(ctx, "messages.get", time.Since(start))
	if err != nil {
		// The message vanished between listing and fetching; not a
		// pipeline failure.
		if gmail.IsNotFound(err) {
			stats.MessagesVanished++
			p.metrics.RecordMessage(ctx, instrumentation.ResultVanished)
			logger.Info("message vanished, skipping", logging.MessageID(messageID))
			return nil
		}
		return err
	}

	parsed, parts, err := gmail.Decode(msg)
	if err != nil {
		var dateErr *gmail.UnparsableDateError
		if errors.As(err, &dateErr) {
			stats.MessagesBadDate++
			p.metrics.RecordMessage(ctx, instrumentation.ResultBadDate)
			logger.Warn("unparsable date header, skipping message",
				logging.MessageID(messageID), logging.Err(err))
			return nil
		}
		return err
	}

	written, skipped := 0, 0
	for _, part := range parts {
		wrote, err := p.processAttachment(ctx, logger, root, parsed, part, stats)
		if err != nil {
			return err
		}
		if wrote {
			written++
		} else {
			skipped++
		}
	}

	stats.Messages++
	p.metrics.RecordMessage(ctx, instrumentation.ResultProcessed)
	logger.Info("message processed",
		logging.MessageID(messageID),
		logging.Domain(parsed.SenderAddress),
		slog.Int("written", written),
		slog.Int("skipped", skipped),
	)
	return nil
}

// processAttachment handles one attachment-bearing part. The returned
// bool reports whether the attachment was written; a false return with a
// nil error is a counted skip.
func (p *Pipeline) processAttachment(ctx context.Context, logger *slog.Logger, root string, parsed *gmail.ParsedMessage, part *gmail.AttachmentPart, stats *Stats) (bool, error) {
	start := time.Now()
	data, err := p.mail.GetAttachment(ctx, parsed.MessageID, part.AttachmentID)
	p.metrics.RecordAPIOperation(ctx, "attachments.get", time.Since(start))
	if err != nil {
		// The client already retried transient failures.
		return false, fmt.Errorf("failed to fetch attachment %s of message %s: %w",
			part.AttachmentID, parsed.MessageID, err)
	}

	// Both segments under the root come from mail headers.
	if err := pathsafe.Validate(part.Filename); err != nil {
		p.skipUnsafe(ctx, logger, parsed.MessageID, part.Filename, err, stats)
		return false, nil
	}
	if err := pathsafe.Validate(parsed.SenderAddress); err != nil {
		p.skipUnsafe(ctx, logger, parsed.MessageID, part.Filename, err, stats)
		return false, nil
	}

	if !p.filter.ShouldKeep(part.Filename) {
		stats.Excluded++
		p.metrics.RecordAttachment(ctx, instrumentation.ResultExcluded)
		logger.Debug("attachment excluded",
			logging.MessageID(parsed.MessageID),
			slog.String(logging.KeyAttachment, part.Filename),
		)
		return false, nil
	}

	dest := DestinationPath(root, parsed.SenderAddress, parsed.SentAt, part.Filename)
	if err := p.fs.MakeDirs(filepath.Dir(dest)); err != nil {
		p.skipWriteError(ctx, logger, dest, err, stats)
		return false, nil
	}
	if err := p.fs.Write(dest, data); err != nil {
		p.skipWriteError(ctx, logger, dest, err, stats)
		return false, nil
	}

	stats.Written++
	p.metrics.RecordAttachment(ctx, instrumentation.ResultWritten)
	logger.Debug("attachment written",
		logging.MessageID(parsed.MessageID),
		slog.String(logging.KeyPath, dest),
		slog.Int("bytes", len(data)),
	)
	return true, nil
}

func (p *Pipeline) skipUnsafe(ctx context.Context, logger *slog.Logger, messageID, filename string, err error, stats *Stats) {
	stats.UnsafePaths++
	p.metrics.RecordAttachment(ctx, instrumentation.ResultUnsafePath)
	logger.Warn("unsafe path, skipping attachment",
		logging.MessageID(messageID),
		slog.String(logging.KeyAttachment, filename),
		logging.Err(err),
	)
}

func (p *Pipeline) skipWriteError(ctx context.Context, logger *slog.Logger, dest string, err error, stats *Stats) {
	stats.WriteErrors++
	p.metrics.RecordAttachment(ctx, instrumentation.ResultWriteError)
	logger.Error("failed to write attachment",
		slog.String(logging.KeyPath, dest),
		logging.Err(err),
	)
}

// FilterUnwanted removes already-written files whose names match the
// exclusion set. It exists so the exclusion set can be tightened after
// an extraction without re-pulling the mailbox.
func (p *Pipeline) FilterUnwanted(ctx context.Context, opts Options) (*Stats, error) {
	logger := logging.WithStage(p.logger, StageFilterUnwanted)
	stats := &Stats{}
	if !p.fs.Exists(opts.OutputDir) {
		return stats, nil
	}

	paths, err := p.fs.ListAll(opts.OutputDir)
	if err != nil {
		return stats, err
	}
	for _, path := range paths {
		if !p.fs.IsFile(path) {
			continue
		}
		if p.filter.ShouldKeep(filepath.Base(path)) {
			continue
		}
		if err := p.fs.RemoveFile(path); err != nil {
			return stats, err
		}
		stats.FilesRemoved++
		logger.Debug("removed unwanted file", slog.String(logging.KeyPath, path))
	}

	logger.Info("filter complete", slog.Int("files_removed", stats.FilesRemoved))
	return stats, nil
}

// PruneEmptyDirs removes directories left empty under the output root,
// deepest first so a directory emptied by the removal of its children is
// itself removed in the same pass.
func (p *Pipeline) PruneEmptyDirs(ctx context.Context, opts Options) (*Stats, error) {
	logger := logging.WithStage(p.logger, StagePruneEmptyDirs)
	stats := &Stats{}
	if !p.fs.Exists(opts.OutputDir) {
		return stats, nil
	}

	paths, err := p.fs.ListAll(opts.OutputDir)
	if err != nil {
		return stats, err
	}
	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })

	for _, path := range paths {
		if !p.fs.IsDir(path) {
			continue
		}
		children, err := p.fs.ListChildren(path)
		if err != nil {
			return stats, err
		}
		if len(children) > 0 {
			continue
		}
		if err := p.fs.RemoveAll(path); err != nil {
			return stats, err
		}
		stats.DirsRemoved++
		logger.Debug("removed empty directory", slog.String(logging.KeyPath, path))
	}

	logger.Info("prune complete", slog.Int("dirs_removed", stats.DirsRemoved))
	return stats, nil
}
