package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// migrateEmbeddingsRequest is the optional body of migrate-embeddings
type migrateEmbeddingsRequest struct {
	Dimension int `json:"dimension"`
}

// initDB provisions the schema
func (s *Server) initDB(c *gin.Context) {
	report, err := s.services.Maintenance.Provision(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Database schema initialized successfully",
		"report":  report,
	})
}

// migrateEmbeddings moves the embedding column to the requested dimension
func (s *Server) migrateEmbeddings(c *gin.Context) {
	const op = "api.migrateEmbeddings"

	var req migrateEmbeddingsRequest
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.badRequest(c, op, "failed to read request body")
		return
	}
	if strings.TrimSpace(string(body)) != "" {
		if err := json.Unmarshal(body, &req); err != nil {
			s.badRequest(c, op, "request body must be {\"dimension\": N}")
			return
		}
	}

	report, err := s.services.Maintenance.MigrateEmbeddings(c.Request.Context(), req.Dimension)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"message":  fmt.Sprintf("Embedding vector column migrated successfully (using %d dimensions)", report.Dimension),
		"report":   report,
		"warnings": report.Warnings(),
	})
}

// reembed fills in missing vectors of text samples
func (s *Server) reembed(c *gin.Context) {
	report, err := s.services.Maintenance.ReembedAll(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Re-embedded %d samples", report.Embedded),
		"report":  report,
	})
}

// checkSchema reports the embedding column and required tables
func (s *Server) checkSchema(c *gin.Context) {
	status, err := s.services.Maintenance.CheckSchema(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"schema": status,
	})
}

// createTestUser inserts the development profile
func (s *Server) createTestUser(c *gin.Context) {
	profile, created, err := s.services.Maintenance.CreateTestUser(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	if !created {
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Test user already exists",
			"userId":  profile.ID,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Test user created successfully",
		"user":    profile,
	})
}

// testEmbedding embeds a fixed sentence
func (s *Server) testEmbedding(c *gin.Context) {
	sample, err := s.services.Maintenance.TestEmbedding(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":              "success",
		"testText":            sample.TestText,
		"embeddingDimensions": sample.Dimensions,
		"firstFiveDimensions": sample.FirstFive,
		"lastFiveDimensions":  sample.LastFive,
		"model":               sample.Model,
	})
}
