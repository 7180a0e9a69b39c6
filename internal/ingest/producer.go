package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jeraldrich/sql-transformer/internal/parser"
	"github.com/jeraldrich/sql-transformer/internal/source"
)

// Producer fetches every source in order, parses each record and enqueues
// the accepted ones. It finishes the queue when it returns, whether or not
// it succeeded.
type Producer struct {
	fetcher source.Fetcher
	sources []string
	queue   *Queue[*parser.Parsed]
	stats   *counters
}

// Run processes all sources. Rejected records are logged and dropped; a
// failed fetch aborts the run.
func (p *Producer) Run(ctx context.Context) error {
	defer p.queue.Finish()

	for _, loc := range p.sources {
		doc, err := p.fetcher.Fetch(ctx, loc)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", loc, err)
		}
		p.stats.sources.Add(1)
		log.Info().Str("source", loc).Int("records", len(doc.Records)).Msg("source fetched")

		for i, raw := range doc.Records {
			p.stats.fetched.Add(1)
			parsed, err := parser.Parse(raw)
			if err != nil {
				var rej *parser.RejectionError
				if !errors.As(err, &rej) {
					return fmt.Errorf("parse %s[%d]: %w", loc, i, err)
				}
				p.stats.rejected.Add(1)
				recordsRejected.WithLabelValues(rej.Field).Inc()
				log.Warn().
					Str("source", loc).
					Int("index", i).
					Str("id", rej.ID).
					Str("field", rej.Field).
					Interface("value", rej.Value).
					Msg(rej.Reason)
				continue
			}

			if err := p.queue.Put(ctx, parsed); err != nil {
				return err
			}
			p.stats.enqueued.Add(1)
			recordsEnqueued.Inc()
			queueDepth.Set(float64(p.queue.Len()))
		}
	}

	log.Info().
		Int64("enqueued", p.stats.enqueued.Load()).
		Int64("rejected", p.stats.rejected.Load()).
		Msg("producer finished")
	return nil
}
