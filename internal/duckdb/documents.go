package duckdb

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

// InsertDocuments appends docs in a single transaction. A document whose
// stream does not exist creates it when an index template matches (or when
// AutoCreate is set); otherwise it is dropped with a log line, the way a
// data stream write without a template is rejected.
// If the batch fails it is retried document by document.
func (s *Store) InsertDocuments(docs []*model.Document) error {
	if len(docs) == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertDocumentsTx(ctx, docs)
	if err == nil {
		return nil
	}

	var failed int
	for _, d := range docs {
		if rerr := s.insertDocumentsTx(ctx, []*model.Document{d}); rerr != nil {
			failed++
			log.Printf("duckdb: dropping document (stream=%s msg=%.80s): %v", d.Stream, d.Message, rerr)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed, %d/%d documents dropped", failed, len(docs))
	}
	return nil
}

func (s *Store) insertDocumentsTx(ctx context.Context, docs []*model.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	writable := make(map[string]bool)
	for _, d := range docs {
		if _, seen := writable[d.Stream]; seen {
			continue
		}
		exists, err := s.streamExists(ctx, tx, d.Stream)
		if err != nil {
			return err
		}
		if !exists {
			created, err := s.createStreamTx(ctx, tx, d.Stream, s.AutoCreate)
			if err != nil {
				return err
			}
			if created {
				log.Printf("duckdb: created data stream %s", d.Stream)
			} else {
				log.Printf("duckdb: no index template matches %s, dropping its documents", d.Stream)
			}
			exists = created
		}
		writable[d.Stream] = exists
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents
		(stream, timestamp, received_at, host, app_name, log_type, message, raw_line, source, source_ip, facility, severity, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range docs {
		if !writable[d.Stream] {
			continue
		}
		received := d.ReceivedAt
		if received.IsZero() {
			received = time.Now()
		}
		ts := d.Timestamp
		if ts.IsZero() {
			ts = received
		}
		if _, err := stmt.ExecContext(ctx,
			d.Stream, ts, received, d.Host, d.AppName, d.LogType, d.Message, d.RawLine,
			d.Source, d.SourceIP, d.Facility, d.Severity, d.Priority,
		); err != nil {
			return fmt.Errorf("document insert: %w", err)
		}
	}
	return tx.Commit()
}

// CountDocuments counts documents in stream. stream may be an index pattern,
// in which case every matching stream is counted and no match counts zero.
// A concrete stream that does not exist returns model.ErrStreamNotFound.
func (s *Store) CountDocuments(stream string, q model.CountQuery) (int64, error) {
	var names []string
	if IsPattern(stream) {
		infos, err := s.DataStreams(stream)
		if err != nil {
			return 0, err
		}
		if len(infos) == 0 {
			return 0, nil
		}
		for _, info := range infos {
			names = append(names, info.Name)
		}
	} else {
		exists, err := s.DataStreamExists(stream)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, model.ErrStreamNotFound
		}
		names = []string{stream}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	where := []string{"stream IN (" + placeholders + ")"}
	args := make([]any, 0, len(names)+2)
	for _, n := range names {
		args = append(args, n)
	}
	if !q.From.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, q.To)
	}

	var n int64
	query := "SELECT COUNT(*) FROM documents WHERE " + strings.Join(where, " AND ")
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: count %s: %w", stream, err)
	}
	return n, nil
}

// DeleteBefore removes documents received before cutoff.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE received_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("duckdb: delete before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return res.RowsAffected()
}
