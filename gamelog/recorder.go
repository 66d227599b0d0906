/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package gamelog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type selection struct {
	table string
	slot  int
}

// Recorder writes selections to a Log off the caller's goroutine. Table loops
// must never block on storage, so a full queue drops the selection.
type Recorder struct {
	log   *Log
	queue chan selection
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
	zl    zerolog.Logger

	timeout time.Duration
}

func NewRecorder(l *Log, buffer int, logger zerolog.Logger) *Recorder {
	if buffer < 1 {
		buffer = 1
	}

	r := &Recorder{
		log:     l,
		queue:   make(chan selection, buffer),
		stop:    make(chan struct{}),
		zl:      logger,
		timeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// For binds the recorder to one table.
func (r *Recorder) For(table string) *TableRecorder {
	return &TableRecorder{r: r, table: table}
}

func (r *Recorder) enqueue(s selection) {
	select {
	case <-r.stop:
		return
	default:
	}

	select {
	case r.queue <- s:
	default:
		r.zl.Warn().
			Str("table", s.table).
			Int("slot", s.slot).
			Msg("LOG: queue full, selection dropped")
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case s := <-r.queue:
			r.write(s)
		case <-r.stop:
			for {
				select {
				case s := <-r.queue:
					r.write(s)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(s selection) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.log.CheckAndReset(ctx); err != nil {
		r.zl.Error().Err(err).Msg("LOG: scheduled reset failed")
	}

	if _, err := r.log.Record(ctx, s.table, s.slot); err != nil {
		r.zl.Error().
			Err(err).
			Str("table", s.table).
			Int("slot", s.slot).
			Msg("LOG: recording selection failed")
	}
}

// Close stops accepting selections and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.stop)
	})

	r.wg.Wait()
}

// TableRecorder is a Recorder bound to a single table.
type TableRecorder struct {
	r     *Recorder
	table string
}

func (t *TableRecorder) RecordSelection(slot int) {
	t.r.enqueue(selection{table: t.table, slot: slot})
}
