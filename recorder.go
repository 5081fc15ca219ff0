package main

import (
	"log"
	"sync"
	"time"
)

const recorderBufSize = 256

// MatchRecorder persists concluded matches off the tick path. Records
// are queued on a buffered channel and written by a background
// goroutine; a full buffer drops the record rather than block, and a
// write failure is logged and forgotten. The simulation never waits on
// the database.
type MatchRecorder struct {
	db      *DB
	records chan MatchRecord
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewMatchRecorder creates and starts the background writer
func NewMatchRecorder(db *DB) *MatchRecorder {
	r := &MatchRecorder{
		db:      db,
		records: make(chan MatchRecord, recorderBufSize),
		stop:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writer()
	return r
}

// Record enqueues a match result (non-blocking)
func (r *MatchRecorder) Record(rec MatchRecord) {
	select {
	case r.records <- rec:
	default:
		log.Printf("recorder: buffer full, dropping match %s vs %s",
			rec.Player1ID, rec.Player2ID)
	}
}

// Stop drains pending records and shuts the writer down
func (r *MatchRecorder) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *MatchRecorder) writer() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.records:
			r.write(rec)
		case <-r.stop:
			// Drain whatever is still queued
			for {
				select {
				case rec := <-r.records:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *MatchRecorder) write(rec MatchRecord) {
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now()
	}
	if err := r.db.RecordMatch(rec); err != nil {
		log.Printf("recorder: persist failed: %v", err)
	}
}
