// Package datastream names, templates and provisions the log data stream.
package datastream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

// Spec identifies a data stream and the template that backs it.
type Spec struct {
	Type      string
	Dataset   string
	Namespace string
	// LogsDB enables index.mode=logsdb in the template settings.
	LogsDB bool
	// Mappings are merged over the default mapping properties.
	Mappings map[string]any
}

// DefaultSpec returns logs-syslog-default.
func DefaultSpec() Spec {
	return Spec{
		Type:      model.DefaultStreamType,
		Dataset:   model.DefaultStreamDataset,
		Namespace: model.DefaultStreamNamespace,
	}
}

// StreamName returns {type}-{dataset}-{namespace}.
func (s Spec) StreamName() string {
	return s.Type + "-" + s.Dataset + "-" + s.Namespace
}

// TemplateName returns {type}-{dataset}-template.
func (s Spec) TemplateName() string {
	return s.Type + "-" + s.Dataset + "-template"
}

// IndexPattern returns {type}-{dataset}-*, matching every namespace.
func (s Spec) IndexPattern() string {
	return s.Type + "-" + s.Dataset + "-*"
}

// Namespace returns the pipeline test namespace for a log type,
// "default-<type>" or "logsdb-<type>".
func Namespace(logType model.LogType, logsDB bool) string {
	if logsDB {
		return "logsdb-" + logType.String()
	}
	return "default-" + logType.String()
}

func keyword() map[string]any { return map[string]any{"type": "keyword"} }

func object(props map[string]any) map[string]any {
	return map[string]any{"properties": props}
}

// DefaultMappings returns the mapping properties for syslog documents.
func DefaultMappings() map[string]any {
	return map[string]any{
		"@timestamp": map[string]any{"type": "date"},
		"host":       object(map[string]any{"name": keyword()}),
		"message":    map[string]any{"type": "text"},
		"log_type":   keyword(),
		"log": object(map[string]any{
			"syslog": object(map[string]any{
				"facility": object(map[string]any{"name": keyword()}),
				"severity": object(map[string]any{"name": keyword()}),
				"priority": map[string]any{"type": "long"},
			}),
		}),
		"source": object(map[string]any{"ip": map[string]any{"type": "ip"}}),
	}
}

// TemplatePriority is the priority of generated templates, above the
// built-in logs-*-* template.
const TemplatePriority = 500

// TemplateBody renders the composable index template for s.
func TemplateBody(s Spec) ([]byte, error) {
	index := map[string]any{"codec": "best_compression"}
	if s.LogsDB {
		index["mode"] = "logsdb"
	}
	props := DefaultMappings()
	merge(props, s.Mappings)

	tmpl := map[string]any{
		"index_patterns": []string{s.IndexPattern()},
		"data_stream":    map[string]any{},
		"priority":       TemplatePriority,
		"template": map[string]any{
			"settings": map[string]any{
				"number_of_shards":   1,
				"number_of_replicas": 1,
				"index":              index,
			},
			"mappings": map[string]any{"properties": props},
		},
	}
	b, err := json.Marshal(tmpl)
	if err != nil {
		return nil, fmt.Errorf("datastream: encode template: %w", err)
	}
	return b, nil
}

// merge copies src into dst, descending into maps present on both sides.
func merge(dst, src map[string]any) {
	for k, v := range src {
		sv, sok := v.(map[string]any)
		dv, dok := dst[k].(map[string]any)
		if sok && dok {
			merge(dv, sv)
			continue
		}
		dst[k] = v
	}
}

// LoadMappings reads extra mapping properties from a YAML file shaped like
// the "properties" object of an index mapping.
func LoadMappings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("datastream: read mappings: %w", err)
	}
	var props map[string]any
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("datastream: parse mappings %s: %w", path, err)
	}
	return props, nil
}

// Store is the subset of the document store used for provisioning.
type Store interface {
	DataStreamExists(ctx context.Context, name string) (bool, error)
	DeleteDataStream(ctx context.Context, name string) error
	PutIndexTemplate(ctx context.Context, name string, body []byte) error
}

// Result reports what Provision did.
type Result struct {
	Stream   string
	Template string
	Pattern  string
	// Deleted is set when an existing stream was removed.
	Deleted bool
	// StillPresent is set when the stream survived deletion.
	StillPresent bool
}

// Provisioner replaces a data stream's template so the stream is recreated
// with it on the next write.
type Provisioner struct {
	store        Store
	verifyPolls  int
	verifyPeriod time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewProvisioner returns a Provisioner that checks deletion 5 times, 2s apart.
func NewProvisioner(store Store) *Provisioner {
	return &Provisioner{store: store, verifyPolls: 5, verifyPeriod: 2 * time.Second, sleep: sleepContext}
}

// Provision deletes the existing stream if present and puts the index
// template. A stream that survives deletion is logged, not fatal. A template
// that is not acknowledged is an error.
func (p *Provisioner) Provision(ctx context.Context, s Spec) (Result, error) {
	res := Result{Stream: s.StreamName(), Template: s.TemplateName(), Pattern: s.IndexPattern()}
	log.Printf("datastream: setting up %s with pattern %s", res.Stream, res.Pattern)
	if s.LogsDB {
		log.Printf("datastream: logsdb mode enabled")
	}

	exists, err := p.store.DataStreamExists(ctx, res.Stream)
	if err != nil {
		return res, err
	}
	if exists {
		if err := p.store.DeleteDataStream(ctx, res.Stream); err != nil {
			return res, err
		}
		res.Deleted = true
		log.Printf("datastream: deleted existing data stream %s", res.Stream)
		gone, err := p.waitGone(ctx, res.Stream)
		if err != nil {
			return res, err
		}
		if !gone {
			res.StillPresent = true
			log.Printf("datastream: warning: %s still exists after deletion", res.Stream)
		}
	} else {
		log.Printf("datastream: no existing data stream %s", res.Stream)
	}

	body, err := TemplateBody(s)
	if err != nil {
		return res, err
	}
	if err := p.store.PutIndexTemplate(ctx, res.Template, body); err != nil {
		return res, err
	}
	log.Printf("datastream: index template %s created", res.Template)
	return res, nil
}

func (p *Provisioner) waitGone(ctx context.Context, name string) (bool, error) {
	for i := 0; i < p.verifyPolls; i++ {
		exists, err := p.store.DataStreamExists(ctx, name)
		if err != nil {
			return false, err
		}
		if !exists {
			return true, nil
		}
		log.Printf("datastream: waiting for %s deletion to complete", name)
		if err := p.sleep(ctx, p.verifyPeriod); err != nil {
			return false, err
		}
	}
	exists, err := p.store.DataStreamExists(ctx, name)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
