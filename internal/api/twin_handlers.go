package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/developer-mesh/style-guide-service/pkg/models"
)

// createSampleRequest is the body of POST /api/twin/samples. Content and url
// are alternative names for the same field.
type createSampleRequest struct {
	Type     string              `json:"type"`
	Content  string              `json:"content"`
	URL      string              `json:"url"`
	Context  *string             `json:"context"`
	Tags     []string            `json:"tags"`
	Modes    []string            `json:"modes"`
	Metadata *models.NewMetadata `json:"metadata"`
}

func (s *Server) getProfile(c *gin.Context) {
	profile, err := s.services.Profiles.Get(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) updateProfile(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.badRequest(c, "api.updateProfile", "failed to read request body")
		return
	}

	profile, err := s.services.Profiles.Update(c.Request.Context(), body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) listModes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"modes": models.ContentModes})
}

func (s *Server) listSamples(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.badRequest(c, "api.listSamples", "limit must be a positive integer")
			return
		}
		limit = n
	}

	samples, err := s.services.Samples.List(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if samples == nil {
		samples = []*models.Sample{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"samples": samples,
		"count":   len(samples),
	})
}

func (s *Server) createSample(c *gin.Context) {
	const op = "api.createSample"

	var req createSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, op, "invalid request body: "+err.Error())
		return
	}

	content := req.Content
	if content == "" {
		content = req.URL
	}

	sample, err := s.services.Samples.Create(c.Request.Context(), models.NewSample{
		Type:     models.SampleType(req.Type),
		Content:  content,
		Context:  req.Context,
		Tags:     req.Tags,
		Modes:    req.Modes,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":           "success",
		"id":               sample.ID,
		"embedding_length": sample.EmbeddingLength(),
	})
}

func (s *Server) getSample(c *gin.Context) {
	sample, err := s.services.Samples.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"sample": sample,
	})
}

func (s *Server) getSampleMetadata(c *gin.Context) {
	entries, err := s.services.Samples.Metadata(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []*models.Metadata{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"metadata": entries,
	})
}

func (s *Server) updateSample(c *gin.Context) {
	var patch models.SamplePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.badRequest(c, "api.updateSample", "invalid request body: "+err.Error())
		return
	}

	sample, err := s.services.Samples.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Sample updated successfully",
		"sample":  sample,
	})
}

func (s *Server) deleteSample(c *gin.Context) {
	id := c.Param("id")
	if err := s.services.Samples.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Sample deleted successfully",
		"id":      id,
	})
}
