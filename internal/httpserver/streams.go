package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/pipecheck/internal/duckdb"
	"github.com/tinytelemetry/pipecheck/internal/model"
)

func (s *Server) handleGetDataStream(c *gin.Context) {
	name := c.Param("name")
	infos, err := s.store.DataStreams(name)
	if err != nil {
		internalError(c, err)
		return
	}
	if len(infos) == 0 && !duckdb.IsPattern(name) {
		notFound(c, name)
		return
	}

	streams := make([]gin.H, 0, len(infos))
	for _, info := range infos {
		streams = append(streams, gin.H{
			"name":            info.Name,
			"timestamp_field": gin.H{"name": "@timestamp"},
			"generation":      1,
			"status":          "GREEN",
			"template":        info.Template,
			"created_at":      info.CreatedAt.UTC().Format(timestampLayout),
			"doc_count":       info.DocCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data_streams": streams})
}

func (s *Server) handleCreateDataStream(c *gin.Context) {
	name := c.Param("name")
	if _, ok, err := s.store.MatchingTemplate(name); err != nil {
		internalError(c, err)
		return
	} else if !ok {
		esError(c, http.StatusBadRequest, "illegal_argument_exception",
			"no matching index template found for data stream ["+name+"]", "")
		return
	}
	created, err := s.store.CreateDataStream(name)
	if err != nil {
		internalError(c, err)
		return
	}
	if !created {
		esError(c, http.StatusBadRequest, "resource_already_exists_exception",
			"data_stream ["+name+"] already exists", name)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (s *Server) handleDeleteDataStream(c *gin.Context) {
	name := c.Param("name")
	deleted, err := s.store.DeleteDataStream(name)
	if err != nil {
		internalError(c, err)
		return
	}
	if !deleted {
		notFound(c, name)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

type templateBody struct {
	IndexPatterns patterns `json:"index_patterns"`
	Priority      int      `json:"priority"`
}

// patterns accepts either a single pattern string or a list.
type patterns []string

func (p *patterns) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*p = strings.Split(one, ",")
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*p = many
	return nil
}

func (s *Server) handlePutTemplate(c *gin.Context) {
	name := c.Param("name")
	raw, err := c.GetRawData()
	if err != nil {
		esError(c, http.StatusBadRequest, "parse_exception", err.Error(), "")
		return
	}
	var body templateBody
	if err := json.Unmarshal(raw, &body); err != nil {
		esError(c, http.StatusBadRequest, "x_content_parse_exception", "failed to parse index template: "+err.Error(), "")
		return
	}
	if len(body.IndexPatterns) == 0 {
		esError(c, http.StatusBadRequest, "action_request_validation_exception",
			"Validation Failed: 1: index patterns are missing;", "")
		return
	}

	err = s.store.PutIndexTemplate(model.IndexTemplateRecord{
		Name:          name,
		IndexPatterns: body.IndexPatterns,
		Priority:      body.Priority,
		Body:          raw,
	})
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (s *Server) handleGetTemplate(c *gin.Context) {
	name := c.Param("name")
	tmpl, ok, err := s.store.IndexTemplate(name)
	if err != nil {
		internalError(c, err)
		return
	}
	if !ok {
		esError(c, http.StatusNotFound, "resource_not_found_exception",
			"index template matching ["+name+"] not found", "")
		return
	}
	body := json.RawMessage(tmpl.Body)
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}
	c.JSON(http.StatusOK, gin.H{
		"index_templates": []gin.H{{
			"name":           tmpl.Name,
			"index_template": body,
		}},
	})
}

func (s *Server) handleDeleteTemplate(c *gin.Context) {
	name := c.Param("name")
	deleted, err := s.store.DeleteIndexTemplate(name)
	if err != nil {
		internalError(c, err)
		return
	}
	if !deleted {
		esError(c, http.StatusNotFound, "resource_not_found_exception",
			"index_template ["+name+"] missing", "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}
