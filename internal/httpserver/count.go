package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

type countRequest struct {
	Query map[string]json.RawMessage `json:"query"`
}

type rangeBounds struct {
	GTE *string `json:"gte"`
	GT  *string `json:"gt"`
	LTE *string `json:"lte"`
	LT  *string `json:"lt"`
}

func (s *Server) handleCount(c *gin.Context) {
	index := c.Param("index")
	raw, err := c.GetRawData()
	if err != nil {
		esError(c, http.StatusBadRequest, "parse_exception", err.Error(), "")
		return
	}
	q, err := parseCountQuery(raw, s.now())
	if err != nil {
		esError(c, http.StatusBadRequest, "parsing_exception", err.Error(), "")
		return
	}

	n, err := s.store.CountDocuments(index, q)
	if errors.Is(err, model.ErrStreamNotFound) {
		notFound(c, index)
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": n,
		"_shards": gin.H{
			"total":      1,
			"successful": 1,
			"skipped":    0,
			"failed":     0,
		},
	})
}

// parseCountQuery understands match_all and a range on @timestamp. An empty
// body counts everything.
func parseCountQuery(raw []byte, now time.Time) (model.CountQuery, error) {
	var q model.CountQuery
	if len(bytes.TrimSpace(raw)) == 0 {
		return q, nil
	}
	var req countRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return q, fmt.Errorf("failed to parse request body: %w", err)
	}
	if len(req.Query) == 0 {
		return q, nil
	}
	if len(req.Query) > 1 {
		return q, errors.New("query malformed, more than one clause")
	}

	for kind, body := range req.Query {
		switch kind {
		case "match_all":
			return q, nil
		case "range":
			var fields map[string]rangeBounds
			if err := json.Unmarshal(body, &fields); err != nil {
				return q, fmt.Errorf("malformed range query: %w", err)
			}
			for field, b := range fields {
				if field != "@timestamp" {
					return q, fmt.Errorf("range on [%s] is not supported", field)
				}
				return rangeQuery(b, now)
			}
			return q, errors.New("range query needs a field")
		default:
			return q, fmt.Errorf("unknown query [%s]", kind)
		}
	}
	return q, nil
}

func rangeQuery(b rangeBounds, now time.Time) (model.CountQuery, error) {
	var q model.CountQuery
	var err error
	switch {
	case b.GTE != nil:
		q.From, err = parseDateMath(*b.GTE, now)
	case b.GT != nil:
		q.From, err = parseDateMath(*b.GT, now)
		q.From = q.From.Add(time.Nanosecond)
	}
	if err != nil {
		return q, err
	}
	switch {
	case b.LTE != nil:
		q.To, err = parseDateMath(*b.LTE, now)
	case b.LT != nil:
		q.To, err = parseDateMath(*b.LT, now)
		q.To = q.To.Add(-time.Nanosecond)
	}
	return q, err
}

// parseDateMath accepts RFC 3339 timestamps, epoch milliseconds and the
// "now", "now-15m" style expressions.
func parseDateMath(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "now"); ok {
		if rest == "" {
			return now, nil
		}
		sign := rest[0]
		if (sign != '-' && sign != '+') || len(rest) < 3 {
			return time.Time{}, fmt.Errorf("unsupported date math [%s]", s)
		}
		n, err := strconv.Atoi(rest[1 : len(rest)-1])
		if err != nil {
			return time.Time{}, fmt.Errorf("unsupported date math [%s]", s)
		}
		var unit time.Duration
		switch rest[len(rest)-1] {
		case 's':
			unit = time.Second
		case 'm':
			unit = time.Minute
		case 'h', 'H':
			unit = time.Hour
		case 'd':
			unit = 24 * time.Hour
		default:
			return time.Time{}, fmt.Errorf("unsupported date math unit in [%s]", s)
		}
		d := time.Duration(n) * unit
		if sign == '-' {
			d = -d
		}
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Time{}, fmt.Errorf("failed to parse date field [%s]", s)
}
