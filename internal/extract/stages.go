package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/yonagi/mailharvest/internal/logging"
)

// Stage names accepted by Run.
const (
	StageExtract        = "extract"
	StageFilterUnwanted = "filter-unwanted"
	StagePruneEmptyDirs = "prune-empty-dirs"
)

type stageFunc func(*Pipeline, context.Context, Options) (*Stats, error)

// stages is the fixed registry of runnable stages. Adding a stage means
// adding an entry here and to StageOrder.
var stages = map[string]stageFunc{
	StageExtract:        (*Pipeline).Extract,
	StageFilterUnwanted: (*Pipeline).FilterUnwanted,
	StagePruneEmptyDirs: (*Pipeline).PruneEmptyDirs,
}

// StageOrder lists every stage in its canonical run order.
var StageOrder = []string{StageExtract, StageFilterUnwanted, StagePruneEmptyDirs}

// Run executes the named stages in the given order, accumulating their
// stats. Every name is validated before any stage runs, so a typo cannot
// leave a run half finished.
func (p *Pipeline) Run(ctx context.Context, names []string, opts Options) (*Stats, error) {
	for _, name := range names {
		if _, ok := stages[name]; !ok {
			return nil, fmt.Errorf("unknown stage %q (available: %v)", name, StageOrder)
		}
	}

	total := &Stats{}
	for _, name := range names {
		start := time.Now()
		stats, err := stages[name](p, ctx, opts)
		p.metrics.RecordStage(ctx, name, time.Since(start))
		if stats != nil {
			total.add(stats)
		}
		if err != nil {
			return total, fmt.Errorf("stage %s failed: %w", name, err)
		}
		p.logger.Info("stage finished",
			logging.Stage(name),
			logging.Status(logging.StatusSuccess),
		)
	}
	return total, nil
}

func (s *Stats) add(o *Stats) {
	s.Messages += o.Messages
	s.MessagesVanished += o.MessagesVanished
	s.MessagesBadDate += o.MessagesBadDate
	s.Written += o.Written
	s.Excluded += o.Excluded
	s.UnsafePaths += o.UnsafePaths
	s.WriteErrors += o.WriteErrors
	s.FilesRemoved += o.FilesRemoved
	s.DirsRemoved += o.DirsRemoved
}
