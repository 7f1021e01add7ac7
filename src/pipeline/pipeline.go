// Package pipeline assembles the watcher, click listener, coordinator and
// writers into one supervised process.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"character-hunter/src/clicks"
	"character-hunter/src/config"
	"character-hunter/src/coordinator"
	"character-hunter/src/dataset"
	"character-hunter/src/imagehash"
	"character-hunter/src/ledger"
	"character-hunter/src/ocr"
	"character-hunter/src/query"
	"character-hunter/src/resident"
	"character-hunter/src/screenshot"
	"character-hunter/src/worker"
)

// Deps are the platform seams. Nil fields use the real implementations.
type Deps struct {
	Recognizer ocr.Recognizer
	Capture    screenshot.CaptureFunc
	Bounds     func() (image.Rectangle, error)
	Clicks     clicks.Source
}

type Pipeline struct {
	cfg     *config.Config
	session string

	watcher  *query.Watcher
	capturer *clicks.Capturer
	source   clicks.Source
	coord    *coordinator.Coordinator
	pool     *worker.Pool
	ledger   *ledger.Ledger
	server   *resident.Server
	closers  []io.Closer
}

// New builds a pipeline from cfg. It claims the resident port first, so a
// second instance fails with resident.ErrAlreadyRunning before touching the
// dataset.
func New(cfg *config.Config, deps Deps) (_ *Pipeline, err error) {
	p := &Pipeline{cfg: cfg, session: uuid.NewString()}
	defer func() {
		if err != nil {
			p.close()
		}
	}()

	p.server = resident.NewServer(cfg.PortStart, func() coordinator.Snapshot { return p.coord.Snapshot() })
	if err := p.server.Listen(); err != nil {
		return nil, err
	}
	p.closers = append(p.closers, p.server)

	method, err := imagehash.ParseMethod(cfg.DedupMethod)
	if err != nil {
		return nil, err
	}
	policy, err := worker.ParsePolicy(cfg.WriteDropPolicy)
	if err != nil {
		return nil, err
	}

	if deps.Capture == nil {
		deps.Capture = screenshot.CaptureRegion
	}
	if deps.Bounds == nil {
		deps.Bounds = screenshot.VirtualBounds
	}
	if deps.Recognizer == nil {
		engine, err := ocr.NewEngine(cfg.TesseractLang)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OCR: %w", err)
		}
		p.closers = append(p.closers, engine)
		deps.Recognizer = engine
	}
	if deps.Clicks == nil {
		deps.Clicks = clicks.NewHookSource()
	}
	p.source = deps.Clicks

	bounds, err := deps.Bounds()
	if err != nil {
		return nil, fmt.Errorf("failed to read screen bounds: %w", err)
	}

	p.ledger, err = ledger.Open(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, p.ledger)

	writer := dataset.NewWriter(dataset.Options{
		Root:           cfg.DatasetDir,
		Format:         dataset.Format(cfg.ImageFormat),
		TargetSize:     cfg.TargetSize,
		DedupMethod:    method,
		DedupThreshold: cfg.DedupThreshold,
		DedupWindow:    cfg.DedupWindow,
		DedupMaxAge:    cfg.DedupMaxAge(),
	}, p.ledger)

	p.pool = worker.New(cfg.WriteWorkers, cfg.WriteQueueSize, policy)
	p.coord = coordinator.New(coordinator.Options{
		Freshness:           cfg.Freshness(),
		AcceptLowConfidence: cfg.AcceptLowConfidence,
		Session:             p.session,
	}, writer, p.pool)

	p.watcher = query.NewWatcher(query.Options{
		Region:              cfg.QueryRegion,
		Interval:            cfg.WatchInterval(),
		SimilarityThreshold: cfg.QuerySimilarity,
		MinLength:           cfg.QueryMinLength,
		StableFrames:        cfg.QueryStableFrames,
	}, deps.Capture, deps.Recognizer)

	p.capturer = clicks.NewCapturer(clicks.Options{
		Radius:      cfg.CaptureRadius,
		Budget:      cfg.CaptureBudget(),
		Cooldown:    cfg.ClickCooldown(),
		MinDistance: cfg.ClickMinDistance,
	}, bounds, deps.Capture)

	return p, nil
}

// Session is the id stamped on every capture of this run.
func (p *Pipeline) Session() string { return p.session }

// Port is the resident port serving /status.
func (p *Pipeline) Port() int { return p.server.Port() }

func (p *Pipeline) Snapshot() coordinator.Snapshot { return p.coord.Snapshot() }

// Run blocks until ctx is cancelled or a component fails. Queued writes are
// flushed before it returns. A nil error means a clean stop.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.close()
	log.Printf("Pipeline: session %s, dataset %s", p.session, p.cfg.DatasetDir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.coord.Run(gctx) })
	g.Go(func() error { return p.watcher.Run(gctx, p.coord.PostQuery) })
	g.Go(func() error {
		return clicks.Listen(gctx, p.source, p.capturer, func(cp clicks.Capture) { p.coord.PostClick(cp) })
	})
	g.Go(func() error { return p.server.Serve(gctx) })
	g.Go(func() error {
		// The catalog can be rebuilt later; losing the watcher is not fatal.
		if err := ledger.Watch(gctx, p.ledger, p.cfg.DatasetDir, nil); err != nil {
			log.Printf("Pipeline: ledger watcher unavailable: %v", err)
		}
		return nil
	})

	err := g.Wait()
	p.pool.Close()
	if err != nil {
		log.Printf("Pipeline: stopped with error: %v", err)
		return err
	}
	log.Printf("Pipeline: stopped")
	return nil
}

func (p *Pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			log.Printf("Pipeline: close: %v", err)
		}
	}
	p.closers = nil
}
