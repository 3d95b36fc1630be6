package elastic

import (
	"encoding/json"
	"log"
	"time"
)

const rangeLayout = "2006-01-02T15:04:05.000000Z"

// Query narrows a count. The zero value counts every document.
type Query struct {
	// Minutes limits the count to documents with @timestamp in the last N minutes.
	Minutes int
	// Custom is a raw JSON query clause. It replaces the other options.
	Custom string
}

// Body returns the request body for a count at time now. An invalid Custom
// clause is logged and ignored.
func (q Query) Body(now time.Time) []byte {
	var clause any = map[string]any{"match_all": map[string]any{}}
	if q.Minutes > 0 {
		now = now.UTC()
		clause = map[string]any{
			"range": map[string]any{
				"@timestamp": map[string]string{
					"gte": now.Add(-time.Duration(q.Minutes) * time.Minute).Format(rangeLayout),
					"lte": now.Format(rangeLayout),
				},
			},
		}
	}
	if q.Custom != "" {
		var custom json.RawMessage
		if err := json.Unmarshal([]byte(q.Custom), &custom); err != nil {
			log.Printf("elastic: invalid JSON query, using default query instead: %v", err)
		} else {
			clause = custom
		}
	}
	body, _ := json.Marshal(map[string]any{"query": clause})
	return body
}
