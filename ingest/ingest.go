package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"templefeed/db"
)

const maxLineSize = 4 * 1024 * 1024

// Stats summarizes an ingest run
type Stats struct {
	Lines    int
	Applied  int
	Rejected int64
}

// Run reads JSON lines from r and applies them through a db writer at
// database. Malformed lines are skipped and counted.
func Run(ctx context.Context, r io.Reader, database string, workers int) (Stats, error) {
	eventChan := make(chan interface{}, 1000)
	writer, err := db.NewWriter(database, eventChan, 0)
	if err != nil {
		return Stats{}, err
	}
	defer writer.Close()

	applied := make(chan int, 1)
	go func() {
		applied <- writer.Subscribe(ctx)
	}()

	pp := NewParallelProcessor(ctx, workers, 1000, eventChan)
	pp.Start()

	stats := Stats{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		stats.Lines++
		data := append([]byte(nil), scanner.Bytes()...)
		if !pp.Enqueue(Line{Number: stats.Lines, Data: data}) {
			break
		}
	}
	scanErr := scanner.Err()

	pp.Close()
	close(eventChan)
	stats.Applied = <-applied
	stats.Rejected = pp.Rejected()

	log.WithFields(log.Fields{
		"lines":    stats.Lines,
		"applied":  stats.Applied,
		"rejected": stats.Rejected,
	}).Info("Ingest finished")

	if scanErr != nil {
		return stats, fmt.Errorf("read input: %w", scanErr)
	}
	return stats, ctx.Err()
}
