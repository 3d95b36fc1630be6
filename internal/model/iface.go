package model

import (
	"errors"
	"time"
)

// CountQuery narrows a document count. Zero value counts everything.
type CountQuery struct {
	From time.Time // inclusive, zero = unbounded
	To   time.Time // inclusive, zero = unbounded
}

// DocumentWriter appends documents to a store.
type DocumentWriter interface {
	InsertDocuments(docs []*Document) error
}

// DataStreamStore is the store contract shared by the sink HTTP API and the sink processor.
type DataStreamStore interface {
	DocumentWriter
	CountDocuments(stream string, q CountQuery) (int64, error)
	DataStreamExists(stream string) (bool, error)
	DataStreams(pattern string) ([]DataStreamInfo, error)
	CreateDataStream(stream string) (bool, error)
	DeleteDataStream(stream string) (bool, error)
	PutIndexTemplate(t IndexTemplateRecord) error
	IndexTemplate(name string) (IndexTemplateRecord, bool, error)
	DeleteIndexTemplate(name string) (bool, error)
	MatchingTemplate(stream string) (IndexTemplateRecord, bool, error)
}

// DataStreamInfo describes one stored data stream.
type DataStreamInfo struct {
	Name      string
	Template  string
	CreatedAt time.Time
	DocCount  int64
}

// IndexTemplateRecord is an index template as stored by the sink.
type IndexTemplateRecord struct {
	Name          string
	IndexPatterns []string
	Priority      int
	Body          []byte // raw JSON body as received
}

// ErrStreamNotFound is returned when a named data stream does not exist.
var ErrStreamNotFound = errors.New("data stream not found")
