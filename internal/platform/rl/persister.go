package rl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const saveTimeout = 10 * time.Second

// Persister saves tables in the background. Submit never blocks: if a save
// is already waiting, the newer table replaces it.
type Persister struct {
	store   Store
	logger  zerolog.Logger
	pending chan Table

	saves    atomic.Int64
	failures atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPersister(store Store, logger zerolog.Logger) *Persister {
	return &Persister{
		store:   store,
		logger:  logger,
		pending: make(chan Table, 1),
	}
}

// Start launches the save loop.
func (p *Persister) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-p.pending:
				p.save(t)
			}
		}
	}()
}

// Submit queues t for saving. The caller must not modify t afterwards.
func (p *Persister) Submit(t Table) {
	select {
	case p.pending <- t:
		return
	default:
	}
	// Replace the stale table with the newer one.
	select {
	case <-p.pending:
	default:
	}
	select {
	case p.pending <- t:
	default:
	}
}

// Stop ends the loop and writes any table still waiting.
func (p *Persister) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	select {
	case t := <-p.pending:
		p.save(t)
	default:
	}
}

// SaveNow writes t synchronously.
func (p *Persister) SaveNow(t Table) error {
	return p.save(t)
}

func (p *Persister) save(t Table) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := p.store.Save(ctx, t); err != nil {
		p.failures.Add(1)
		p.logger.Error().Err(err).Int("states", len(t)).Msg("q-table save failed, will retry on next trigger")
		return err
	}
	p.saves.Add(1)
	p.logger.Debug().Int("states", len(t)).Msg("q-table saved")
	return nil
}

func (p *Persister) Saves() int64    { return p.saves.Load() }
func (p *Persister) Failures() int64 { return p.failures.Load() }
