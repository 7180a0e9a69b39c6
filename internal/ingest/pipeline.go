package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/jeraldrich/sql-transformer/internal/parser"
	"github.com/jeraldrich/sql-transformer/internal/source"
)

// ErrNoSources is returned by New when there is nothing to ingest.
var ErrNoSources = errors.New("no sources configured")

// Options configures a Pipeline. Zero values fall back to defaults.
type Options struct {
	Sources             []string
	Workers             int
	QueueCapacity       int
	PollTimeout         time.Duration
	RelinkMissingBodies bool
}

const (
	defaultQueueCapacity = 1000
	defaultPollTimeout   = time.Second
)

// Summary totals one run.
type Summary struct {
	Sources      int64         `json:"sources"`
	Fetched      int64         `json:"fetched"`
	Rejected     int64         `json:"rejected"`
	Enqueued     int64         `json:"enqueued"`
	Persisted    int64         `json:"persisted"`
	Skipped      int64         `json:"skipped"`
	BodiesLinked int64         `json:"bodies_linked"`
	Conflicts    int64         `json:"conflicts"`
	Duration     time.Duration `json:"duration_ns"`
}

// Progress is a live view of a running pipeline.
type Progress struct {
	Summary
	Running          bool  `json:"running"`
	QueueDepth       int   `json:"queue_depth"`
	QueueCapacity    int   `json:"queue_capacity"`
	Outstanding      int64 `json:"outstanding"`
	ProducerFinished bool  `json:"producer_finished"`
}

type counters struct {
	sources      atomic.Int64
	fetched      atomic.Int64
	rejected     atomic.Int64
	enqueued     atomic.Int64
	persisted    atomic.Int64
	skipped      atomic.Int64
	bodiesLinked atomic.Int64
	conflicts    atomic.Int64
}

// Pipeline owns the queue and joins the producer with the consumer pool.
type Pipeline struct {
	db      *gorm.DB
	fetcher source.Fetcher
	opts    Options
	queue   *Queue[*parser.Parsed]
	stats   counters
	claims  sync.Map

	ran      atomic.Bool
	running  atomic.Bool
	started  atomic.Int64 // unix nanos; 0 before Run
	finished atomic.Int64
}

// New validates opts and returns a pipeline ready to Run once.
func New(db *gorm.DB, fetcher source.Fetcher, opts Options) (*Pipeline, error) {
	if len(opts.Sources) == 0 {
		return nil, ErrNoSources
	}
	if db == nil || fetcher == nil {
		return nil, errors.New("ingest: db and fetcher are required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueCapacity < 1 {
		opts.QueueCapacity = defaultQueueCapacity
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	return &Pipeline{
		db:      db,
		fetcher: fetcher,
		opts:    opts,
		queue:   NewQueue[*parser.Parsed](opts.QueueCapacity),
	}, nil
}

// Run starts the producer and opts.Workers consumers and waits for all of
// them. The first error cancels the rest and is returned together with the
// totals reached so far.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	if !p.ran.CompareAndSwap(false, true) {
		return Summary{}, errors.New("ingest: pipeline already ran")
	}
	p.running.Store(true)
	p.started.Store(time.Now().UnixNano())

	log.Info().
		Strs("sources", p.opts.Sources).
		Int("workers", p.opts.Workers).
		Int("queue_capacity", p.opts.QueueCapacity).
		Bool("relink_missing_bodies", p.opts.RelinkMissingBodies).
		Msg("pipeline starting")

	g, gctx := errgroup.WithContext(ctx)

	producer := &Producer{
		fetcher: p.fetcher,
		sources: p.opts.Sources,
		queue:   p.queue,
		stats:   &p.stats,
	}
	g.Go(func() error { return producer.Run(gctx) })

	for i := 0; i < p.opts.Workers; i++ {
		c := &Consumer{
			id:          i,
			db:          p.db,
			queue:       p.queue,
			pollTimeout: p.opts.PollTimeout,
			relink:      p.opts.RelinkMissingBodies,
			claims:      &p.claims,
			stats:       &p.stats,
			log:         log.With().Int("consumer", i).Logger(),
		}
		g.Go(func() error { return c.Run(gctx) })
	}

	err := g.Wait()
	p.finished.Store(time.Now().UnixNano())
	p.running.Store(false)
	sum := p.summary()

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Int64("persisted", sum.Persisted).
		Int64("skipped", sum.Skipped).
		Int64("rejected", sum.Rejected).
		Int64("conflicts", sum.Conflicts).
		Dur("duration", sum.Duration).
		Msg("pipeline finished")
	return sum, err
}

// Progress reports the current counters and queue state. It is safe to call
// concurrently with Run.
func (p *Pipeline) Progress() Progress {
	return Progress{
		Summary:          p.summary(),
		Running:          p.running.Load(),
		QueueDepth:       p.queue.Len(),
		QueueCapacity:    p.queue.Cap(),
		Outstanding:      p.queue.Outstanding(),
		ProducerFinished: p.queue.Finished(),
	}
}

func (p *Pipeline) summary() Summary {
	var d time.Duration
	if start := p.started.Load(); start > 0 {
		end := p.finished.Load()
		if end == 0 {
			end = time.Now().UnixNano()
		}
		d = time.Duration(end - start)
	}
	return Summary{
		Sources:      p.stats.sources.Load(),
		Fetched:      p.stats.fetched.Load(),
		Rejected:     p.stats.rejected.Load(),
		Enqueued:     p.stats.enqueued.Load(),
		Persisted:    p.stats.persisted.Load(),
		Skipped:      p.stats.skipped.Load(),
		BodiesLinked: p.stats.bodiesLinked.Load(),
		Conflicts:    p.stats.conflicts.Load(),
		Duration:     d,
	}
}
