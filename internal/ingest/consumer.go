package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/jeraldrich/sql-transformer/internal/parser"
	"github.com/jeraldrich/sql-transformer/internal/repo"
)

// Consumer claims records from the queue and persists them on its own store
// connection.
type Consumer struct {
	id          int
	db          *gorm.DB
	queue       *Queue[*parser.Parsed]
	pollTimeout time.Duration
	relink      bool
	claims      *sync.Map // message ids this run has started writing
	stats       *counters
	log         zerolog.Logger
}

// Run pins a connection and processes records until end of stream. Any
// store error ends the worker.
func (c *Consumer) Run(ctx context.Context) error {
	return c.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		c.log.Debug().Msg("consumer started")
		for {
			item, err := c.queue.Get(ctx, c.pollTimeout)
			switch {
			case errors.Is(err, ErrQueueEmpty):
				continue
			case errors.Is(err, ErrEndOfStream):
				c.log.Debug().Msg("consumer drained")
				return nil
			case err != nil:
				return err
			}
			queueDepth.Set(float64(c.queue.Len()))

			if err := c.process(ctx, conn, item); err != nil {
				return fmt.Errorf("consumer %d: message %s: %w", c.id, item.Message.ID, err)
			}
		}
	})
}

func (c *Consumer) process(ctx context.Context, conn *gorm.DB, p *parser.Parsed) error {
	start := time.Now()
	defer func() { recordDuration.Observe(time.Since(start).Seconds()) }()

	m := p.Message
	ctx, span := otel.Tracer("ingest/Consumer").Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("message.id", m.ID),
			attribute.String("message.type", string(m.Type)),
			attribute.Int("consumer.id", c.id),
		),
	)
	defer span.End()
	l := c.log.With().Str("id", m.ID).Logger()

	state, err := repo.LookupMessageState(ctx, conn, m.ID)
	if err != nil {
		return fail(span, err)
	}
	switch {
	case state == repo.MessageWithoutBody && c.relink && p.Refs.Body != "":
		// A row claimed in this run may still be waiting for its own body.
		if !c.claim(m.ID) {
			c.skip(l, reasonAlreadyPersisted)
			return nil
		}
		l.Info().Msg("message persisted without body; relinking")
		return fail(span, c.attachBody(ctx, conn, l, m.ID, p.Refs.Body))
	case state != repo.MessageAbsent:
		c.skip(l, reasonAlreadyPersisted)
		return nil
	}

	if err := c.resolveRefs(ctx, conn, p.Refs); err != nil {
		return fail(span, err)
	}

	c.claim(m.ID)
	if err := repo.CreateMessage(ctx, conn, m); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// Another consumer claimed this id between the check and the write.
			c.skip(l, reasonDuplicate)
			return nil
		}
		return fail(span, err)
	}
	c.stats.persisted.Add(1)
	recordsPersisted.Inc()

	if p.Refs.Body != "" {
		if err := c.attachBody(ctx, conn, l, m.ID, p.Refs.Body); err != nil {
			return fail(span, err)
		}
	}
	l.Debug().Str("type", string(m.Type)).Msg("message persisted")
	return nil
}

// resolveRefs makes sure every entity the message points at exists.
func (c *Consumer) resolveRefs(ctx context.Context, conn *gorm.DB, refs parser.References) error {
	resolve := func(kind, id string, fn func(context.Context, *gorm.DB, string) (repo.Resolution, error)) error {
		if id == "" {
			return nil
		}
		res, err := fn(ctx, conn, id)
		if err != nil {
			return fmt.Errorf("resolve %s %s: %w", kind, id, err)
		}
		if res == repo.Converged {
			c.stats.conflicts.Add(1)
			entityConflicts.WithLabelValues(kind).Inc()
		}
		return nil
	}

	if err := resolve("user", refs.FromUserID, resolveUser); err != nil {
		return err
	}
	if err := resolve("user", refs.ToUserID, resolveUser); err != nil {
		return err
	}
	if err := resolve("user", refs.SenderUserID, resolveUser); err != nil {
		return err
	}
	if err := resolve("channel", refs.ChannelID, resolveChannel); err != nil {
		return err
	}
	return resolve("correlation", refs.CorrelationID, resolveCorrelation)
}

// attachBody is the second write: it creates the body row for messageID and
// links the message to it.
func (c *Consumer) attachBody(ctx context.Context, conn *gorm.DB, l zerolog.Logger, messageID, text string) error {
	body, res, err := repo.ResolveBody(ctx, conn, messageID, text)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// A record with the same id but a different body got there first.
			c.skip(l, reasonBodyConflict)
			return nil
		}
		return fmt.Errorf("resolve body: %w", err)
	}
	if res == repo.Converged {
		c.stats.conflicts.Add(1)
		entityConflicts.WithLabelValues("body").Inc()
	}

	linked, err := repo.LinkBody(ctx, conn, messageID, body.ID)
	if err != nil {
		return fmt.Errorf("link body: %w", err)
	}
	if linked {
		c.stats.bodiesLinked.Add(1)
		bodiesLinked.Inc()
	}
	return nil
}

// claim records that this run is writing id and reports whether it was the
// first to do so.
func (c *Consumer) claim(id string) bool {
	_, loaded := c.claims.LoadOrStore(id, struct{}{})
	return !loaded
}

func (c *Consumer) skip(l zerolog.Logger, reason string) {
	c.stats.skipped.Add(1)
	recordsSkipped.WithLabelValues(reason).Inc()
	l.Debug().Str("reason", reason).Msg("message skipped")
}

func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func resolveUser(ctx context.Context, db *gorm.DB, id string) (repo.Resolution, error) {
	_, res, err := repo.ResolveUser(ctx, db, id)
	return res, err
}

func resolveChannel(ctx context.Context, db *gorm.DB, id string) (repo.Resolution, error) {
	_, res, err := repo.ResolveChannel(ctx, db, id)
	return res, err
}

func resolveCorrelation(ctx context.Context, db *gorm.DB, id string) (repo.Resolution, error) {
	_, res, err := repo.ResolveCorrelation(ctx, db, id)
	return res, err
}

