package pipeline

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cozy-crashes/crashlens/internal/links"
	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
	"github.com/cozy-crashes/crashlens/internal/telemetry"
)

// DefaultConcurrency bounds how many links are retrieved at once.
const DefaultConcurrency = 4

type Pipeline struct {
	retrievers *Registry[Retriever]
	parsers    *Registry[Parser]
	processors *Registry[Processor]

	logger      *zap.Logger
	metrics     *telemetry.Metrics
	concurrency int
	predicates  []GlobalPredicate
}

type Option func(*Pipeline)

func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithGlobalPredicates adds process-wide predicates evaluated next to the
// ones carried by the config snapshot.
func WithGlobalPredicates(preds ...GlobalPredicate) Option {
	return func(p *Pipeline) { p.predicates = append(p.predicates, preds...) }
}

// New returns a pipeline with empty registries.
func New(logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		retrievers:  NewRegistry[Retriever](KindRetriever),
		parsers:     NewRegistry[Parser](KindParser),
		processors:  NewRegistry[Processor](KindProcessor),
		logger:      logger.Named("pipeline"),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Retrievers() *Registry[Retriever] { return p.retrievers }
func (p *Pipeline) Parsers() *Registry[Parser]       { return p.parsers }
func (p *Pipeline) Processors() *Registry[Processor] { return p.processors }

// plan is the ordered stage set and predicates for one Analyze call.
type plan struct {
	snap       *remoteconfig.Snapshot
	ev         Event
	preds      []GlobalPredicate
	retrievers []Retriever
	parsers    []Parser
	processors []Processor
}

func (p *Pipeline) newPlan(snap *remoteconfig.Snapshot, ev Event) *plan {
	if snap == nil {
		snap = remoteconfig.Default()
	}
	preds := CompilePredicates(snap.Predicates)
	preds = append(preds, p.predicates...)
	return &plan{
		snap:       snap,
		ev:         ev,
		preds:      preds,
		retrievers: p.retrievers.Ordered(),
		parsers:    p.parsers.Ordered(),
		processors: p.processors.Ordered(),
	}
}

// Analyze extracts links from input, retrieves every link concurrently and
// runs parsers then processors on each body. Logs come back in link order,
// then body order. Stage failures are logged and never returned; when the
// context is cancelled, logs from links that already finished are kept.
func (p *Pipeline) Analyze(ctx context.Context, snap *remoteconfig.Snapshot, input string, attachments []string, ev Event) []*logs.Log {
	pl := p.newPlan(snap, ev)
	found, rejected := links.Extract(pl.snap.LinkPattern, input, attachments)
	for _, r := range rejected {
		p.logger.Debug("dropping unparseable link", zap.String("link", r.Raw), zap.Error(r.Err))
	}
	if len(found) == 0 {
		return nil
	}

	results := make([][]*logs.Log, len(found))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, u := range found {
		g.Go(func() error {
			if ctx.Err() != nil {
				p.logger.Debug("analysis cancelled before retrieval", zap.String("url", u.String()))
				return nil
			}
			bodies := p.retrieve(ctx, pl, u)
			out := make([]*logs.Log, 0, len(bodies))
			for _, body := range bodies {
				out = append(out, p.analyze(pl, body, u))
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var all []*logs.Log
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// AnalyzeContent runs parsers and processors on content that was obtained
// without a retriever, such as standard input.
func (p *Pipeline) AnalyzeContent(snap *remoteconfig.Snapshot, content string, u *url.URL, ev Event) *logs.Log {
	return p.analyze(p.newPlan(snap, ev), normalize(content), u)
}

func (p *Pipeline) retrieve(ctx context.Context, pl *plan, u *url.URL) []string {
	var bodies []string
	for _, r := range pl.retrievers {
		d := Descriptor{Kind: KindRetriever, Identifier: r.Identifier(), Order: r.Order()}
		if !allow(pl.preds, d, pl.ev) {
			p.metrics.StageRun(string(KindRetriever), d.Identifier, telemetry.OutcomeSkipped)
			continue
		}

		applied := false
		var fetched []string
		start := time.Now()
		err := guard(func() error {
			if !r.Applies(u, pl.ev, pl.snap) {
				return nil
			}
			applied = true
			var err error
			fetched, err = r.Fetch(ctx, u, pl.snap)
			return err
		})
		if err != nil {
			rerr := &RetrievalError{Stage: d.Identifier, URL: u.String(), Err: err}
			p.logger.Warn("retrieval failed", zap.String("stage", d.Identifier), zap.String("url", u.String()), zap.Error(rerr))
			p.metrics.StageRun(string(KindRetriever), d.Identifier, telemetry.OutcomeError)
			continue
		}
		if !applied {
			continue
		}
		p.metrics.ObserveRetrieval(d.Identifier, time.Since(start))
		p.metrics.StageRun(string(KindRetriever), d.Identifier, telemetry.OutcomeOK)
		for _, body := range fetched {
			if strings.TrimSpace(body) == "" {
				continue
			}
			bodies = append(bodies, normalize(body))
		}
	}
	if len(bodies) == 0 {
		p.logger.Debug("no content retrieved", zap.String("url", u.String()))
	}
	return bodies
}

func (p *Pipeline) analyze(pl *plan, content string, u *url.URL) *logs.Log {
	log := logs.New(content, u)
	defer p.metrics.LogAnalyzed()

	for _, s := range pl.parsers {
		if log.Aborted() {
			break
		}
		d := Descriptor{Kind: KindParser, Identifier: s.Identifier(), Order: s.Order()}
		p.runLogStage(pl, d, log, s.Applies, s.Parse)
	}
	if log.Aborted() {
		p.logger.Debug("log aborted during parsing", zap.String("url", log.Source()), zap.String("reason", log.AbortReason()))
		return log
	}

	for _, s := range pl.processors {
		if log.Aborted() {
			break
		}
		d := Descriptor{Kind: KindProcessor, Identifier: s.Identifier(), Order: s.Order()}
		p.runLogStage(pl, d, log, s.Applies, s.Process)
	}
	return log
}

func (p *Pipeline) runLogStage(pl *plan, d Descriptor, log *logs.Log, applies func(*logs.Log, Event) bool, run func(*logs.Log) error) {
	kind := string(d.Kind)
	if !allow(pl.preds, d, pl.ev) {
		p.metrics.StageRun(kind, d.Identifier, telemetry.OutcomeSkipped)
		return
	}
	applied := false
	err := guard(func() error {
		if !applies(log, pl.ev) {
			return nil
		}
		applied = true
		return run(log)
	})
	switch {
	case err != nil:
		var serr error
		if d.Kind == KindParser {
			serr = &ParseError{Stage: d.Identifier, URL: log.Source(), Err: err}
		} else {
			serr = &ProcessError{Stage: d.Identifier, URL: log.Source(), Err: err}
		}
		p.logger.Warn(kind+" failed", zap.String("stage", d.Identifier), zap.String("url", log.Source()), zap.Error(serr))
		p.metrics.StageRun(kind, d.Identifier, telemetry.OutcomeError)
	case !applied:
	case log.Aborted():
		p.metrics.StageRun(kind, d.Identifier, telemetry.OutcomeAborted)
	default:
		p.metrics.StageRun(kind, d.Identifier, telemetry.OutcomeOK)
	}
}

func normalize(body string) string {
	return strings.ReplaceAll(body, "\r\n", "\n")
}
