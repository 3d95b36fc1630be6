package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

// MatchPattern reports whether name matches an index pattern such as
// "logs-syslog-*". A comma-separated list matches when any element does.
func MatchPattern(pattern, name string) bool {
	for _, p := range strings.Split(pattern, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p == "_all" {
			return true
		}
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// IsPattern reports whether s contains wildcard or list syntax.
func IsPattern(s string) bool {
	return s == "_all" || strings.ContainsAny(s, "*?,")
}

// DataStreamExists reports whether the named data stream exists.
func (s *Store) DataStreamExists(stream string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	return s.streamExists(ctx, s.db, stream)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) streamExists(ctx context.Context, q queryer, stream string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM data_streams WHERE name = ?`, stream).Scan(&n); err != nil {
		return false, fmt.Errorf("duckdb: data stream lookup: %w", err)
	}
	return n > 0, nil
}

// DataStreams lists the data streams matching pattern, sorted by name.
// An empty pattern lists every stream.
func (s *Store) DataStreams(pattern string) ([]model.DataStreamInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT ds.name, COALESCE(ds.template, ''), ds.created_at, COUNT(d.stream)
		FROM data_streams ds
		LEFT JOIN documents d ON d.stream = ds.name
		GROUP BY ds.name, ds.template, ds.created_at
		ORDER BY ds.name`)
	if err != nil {
		return nil, fmt.Errorf("duckdb: list data streams: %w", err)
	}
	defer rows.Close()

	var out []model.DataStreamInfo
	for rows.Next() {
		var info model.DataStreamInfo
		if err := rows.Scan(&info.Name, &info.Template, &info.CreatedAt, &info.DocCount); err != nil {
			return nil, err
		}
		if pattern == "" || pattern == "*" || MatchPattern(pattern, info.Name) {
			out = append(out, info)
		}
	}
	return out, rows.Err()
}

// CreateDataStream creates stream, linking it to the best matching template.
// It reports false when the stream already existed.
func (s *Store) CreateDataStream(stream string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	created, err := s.createStreamTx(ctx, tx, stream, true)
	if err != nil {
		return false, err
	}
	return created, tx.Commit()
}

// createStreamTx creates stream unless it exists. Without force, a stream
// that matches no template is not created.
func (s *Store) createStreamTx(ctx context.Context, tx *sql.Tx, stream string, force bool) (bool, error) {
	exists, err := s.streamExists(ctx, tx, stream)
	if err != nil || exists {
		return false, err
	}
	tmpl, ok, err := s.matchingTemplate(ctx, tx, stream)
	if err != nil {
		return false, err
	}
	if !ok && !force {
		return false, nil
	}
	var tmplName any
	if ok {
		tmplName = tmpl.Name
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO data_streams (name, template) VALUES (?, ?)`, stream, tmplName); err != nil {
		return false, fmt.Errorf("duckdb: create data stream %s: %w", stream, err)
	}
	return true, nil
}

// DeleteDataStream removes stream and its documents. It reports false when
// the stream did not exist.
func (s *Store) DeleteDataStream(stream string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM data_streams WHERE name = ?`, stream)
	if err != nil {
		return false, fmt.Errorf("duckdb: delete data stream %s: %w", stream, err)
	}
	n, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE stream = ?`, stream); err != nil {
		return false, fmt.Errorf("duckdb: delete documents of %s: %w", stream, err)
	}
	return n > 0, tx.Commit()
}

// PutIndexTemplate creates or replaces an index template.
func (s *Store) PutIndexTemplate(t model.IndexTemplateRecord) error {
	if t.Name == "" {
		return errors.New("duckdb: index template needs a name")
	}
	patterns, err := json.Marshal(t.IndexPatterns)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO index_templates (name, index_patterns, priority, body, updated_at)
		VALUES (?, ?, ?, ?, current_timestamp)`,
		t.Name, string(patterns), t.Priority, string(t.Body))
	if err != nil {
		return fmt.Errorf("duckdb: put index template %s: %w", t.Name, err)
	}
	return nil
}

// IndexTemplate returns the named template.
func (s *Store) IndexTemplate(name string) (model.IndexTemplateRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	all, err := s.templates(ctx, s.db)
	if err != nil {
		return model.IndexTemplateRecord{}, false, err
	}
	for _, t := range all {
		if t.Name == name {
			return t, true, nil
		}
	}
	return model.IndexTemplateRecord{}, false, nil
}

// DeleteIndexTemplate removes the named template. It reports false when it
// did not exist.
func (s *Store) DeleteIndexTemplate(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM index_templates WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("duckdb: delete index template %s: %w", name, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MatchingTemplate returns the highest priority template whose patterns
// match stream.
func (s *Store) MatchingTemplate(stream string) (model.IndexTemplateRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	return s.matchingTemplate(ctx, s.db, stream)
}

type rowsQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) matchingTemplate(ctx context.Context, q rowsQueryer, stream string) (model.IndexTemplateRecord, bool, error) {
	all, err := s.templates(ctx, q)
	if err != nil {
		return model.IndexTemplateRecord{}, false, err
	}
	for _, t := range all {
		for _, p := range t.IndexPatterns {
			if MatchPattern(p, stream) {
				return t, true, nil
			}
		}
	}
	return model.IndexTemplateRecord{}, false, nil
}

// templates returns every template, highest priority first.
func (s *Store) templates(ctx context.Context, q rowsQueryer) ([]model.IndexTemplateRecord, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, index_patterns, priority, body FROM index_templates`)
	if err != nil {
		return nil, fmt.Errorf("duckdb: list index templates: %w", err)
	}
	defer rows.Close()

	var out []model.IndexTemplateRecord
	for rows.Next() {
		var (
			t        model.IndexTemplateRecord
			patterns string
			body     string
		)
		if err := rows.Scan(&t.Name, &patterns, &t.Priority, &body); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(patterns), &t.IndexPatterns); err != nil {
			return nil, fmt.Errorf("duckdb: template %s patterns: %w", t.Name, err)
		}
		t.Body = []byte(body)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
