package pdf

import (
	"context"
	"fmt"
	"sync"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/kitabu/billing-api/pkg/logger"
)

// engine is one long-lived rendering engine: a prebuilt document
// configuration plus the pool generation it belongs to. Building the
// configuration (fonts, page metrics) is the expensive part, so engines are
// pooled and reused across renders rather than rebuilt per document.
type engine struct {
	newDocument func() core.Maroto
	gen         int
}

func newEngine(title, author string, gen int) *engine {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(title, true).
		WithAuthor(author, true).
		Build()
	return &engine{
		newDocument: func() core.Maroto { return maroto.New(cfg) },
		gen:         gen,
	}
}

// healthy probes the engine by generating an empty document. A corrupted
// font cache or configuration surfaces here instead of mid-render.
func (e *engine) healthy() bool {
	doc, err := e.newDocument().Generate()
	return err == nil && doc != nil
}

// EnginePool hands out rendering engines one at a time. Acquire health-checks
// the engine before handing it over and transparently replaces a dead one.
// Invalidate discards every pooled engine so the next Acquire starts fresh.
type EnginePool struct {
	mu     sync.Mutex
	slots  chan *engine
	title  string
	author string
	gen    int
	log    *logger.Logger
}

// NewEnginePool builds a pool of size slots. Engines are created lazily on
// first acquire.
func NewEnginePool(size int, title, author string, log *logger.Logger) *EnginePool {
	if size < 1 {
		size = 1
	}
	p := &EnginePool{
		slots:  make(chan *engine, size),
		title:  title,
		author: author,
		log:    log,
	}
	for i := 0; i < size; i++ {
		p.slots <- nil
	}
	return p
}

// Acquire blocks until an engine slot is free, then returns a healthy engine.
func (p *EnginePool) Acquire(ctx context.Context) (*engine, error) {
	select {
	case e := <-p.slots:
		if e == nil || e.gen < p.generation() || !e.healthy() {
			if e != nil {
				p.log.Warn().Msg("rendering engine failed health check, relaunching")
			}
			e = newEngine(p.title, p.author, p.generation())
			if !e.healthy() {
				p.slots <- nil
				return nil, fmt.Errorf("pdf: rendering engine failed to start")
			}
		}
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns the engine to the pool.
func (p *EnginePool) Release(e *engine) {
	p.slots <- e
}

// Invalidate bumps the pool generation; engines from older generations are
// discarded and relaunched on their next acquire.
func (p *EnginePool) Invalidate() {
	p.mu.Lock()
	p.gen++
	p.mu.Unlock()
}

func (p *EnginePool) generation() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}
