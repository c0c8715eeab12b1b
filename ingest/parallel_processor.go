package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Line is a raw input line with its position for error reporting
type Line struct {
	Number int
	Data   []byte
}

// ParallelProcessor parses lines on a pool of workers and forwards the
// resulting events to the writer channel. Events from different workers may
// be interleaved; use a single worker when input order matters.
type ParallelProcessor struct {
	maxWorkers  int
	workerQueue chan Line
	eventChan   chan interface{}
	wg          sync.WaitGroup
	ctx         context.Context
	rejected    atomic.Int64
}

func NewParallelProcessor(ctx context.Context, maxWorkers int, maxQueueSize int, eventChan chan interface{}) *ParallelProcessor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &ParallelProcessor{
		maxWorkers:  maxWorkers,
		workerQueue: make(chan Line, maxQueueSize),
		eventChan:   eventChan,
		ctx:         ctx,
	}
}

func (pp *ParallelProcessor) Start() {
	for i := 0; i < pp.maxWorkers; i++ {
		pp.wg.Add(1)
		go pp.startWorker(i)
	}
}

// Enqueue blocks until a worker queue slot is free or the context is done
func (pp *ParallelProcessor) Enqueue(line Line) bool {
	select {
	case pp.workerQueue <- line:
		return true
	case <-pp.ctx.Done():
		return false
	}
}

// Close stops accepting lines and waits for the workers to drain the queue
func (pp *ParallelProcessor) Close() {
	close(pp.workerQueue)
	pp.wg.Wait()
}

// Rejected returns the number of lines that could not be parsed
func (pp *ParallelProcessor) Rejected() int64 {
	return pp.rejected.Load()
}

func (pp *ParallelProcessor) startWorker(id int) {
	defer pp.wg.Done()

	for {
		select {
		case <-pp.ctx.Done():
			log.Debugf("Worker %d: Shutting down", id)
			return
		case line, ok := <-pp.workerQueue:
			if !ok {
				return
			}
			event, err := ParseLine(line.Data)
			if err != nil {
				pp.rejected.Add(1)
				log.WithFields(log.Fields{
					"worker": id,
					"line":   line.Number,
					"error":  err,
				}).Warn("Skipping record")
				continue
			}
			if event == nil {
				continue
			}
			select {
			case pp.eventChan <- event:
			case <-pp.ctx.Done():
				return
			}
		}
	}
}
