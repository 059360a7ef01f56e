package pressrelease

import (
	"context"

	"kjtimes/internal/logger"
)

// ReleaseStore is the part of Store the processor uses.
type ReleaseStore interface {
	List(ctx context.Context, status Status, limit int) ([]Release, error)
	MarkProcessed(ctx context.Context, id string, g Generated) error
}

// Generator rewrites a release into an article.
type Generator interface {
	Rewrite(ctx context.Context, title, content string) (Generated, error)
}

// Processor rewrites collected releases and marks them processed.
type Processor struct {
	store ReleaseStore
	gen   Generator
	log   logger.Logger
	batch int
}

// NewProcessor returns a Processor handling up to 100 releases per run.
func NewProcessor(store ReleaseStore, gen Generator, log logger.Logger) *Processor {
	return &Processor{store: store, gen: gen, log: log, batch: 100}
}

// Run processes every collected release, newest first. A release the model
// fails on stays collected for the next run.
func (p *Processor) Run(ctx context.Context) (int, error) {
	pending, err := p.store.List(ctx, StatusCollected, p.batch)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		p.log.Info("No press releases to process")
		return 0, nil
	}

	done := 0
	for _, r := range pending {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		log := p.log.With(logger.String("id", r.ID), logger.String("origin_id", r.OriginID))

		g, err := p.gen.Rewrite(ctx, r.Title, r.Content)
		if err != nil {
			log.Warn("Rewrite failed", logger.Error(err))
			continue
		}
		if err := p.store.MarkProcessed(ctx, r.ID, g); err != nil {
			log.Error("Failed to store rewrite", logger.Error(err))
			continue
		}
		log.Info("Press release processed", logger.String("generated_title", g.Title))
		done++
	}
	return done, nil
}
