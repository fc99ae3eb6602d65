package main

import (
	"bytes"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brensch/seek/render"
	"github.com/brensch/seek/stats"
	"github.com/brensch/seek/store"
)

type server struct {
	cache *stats.DBCache
}

func newRouter(cache *stats.DBCache) *gin.Engine {
	s := &server{cache: cache}

	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware())

	api := r.Group("/api")
	api.GET("/summary", s.handleSummary)
	api.GET("/timeline", s.handleTimeline)
	api.GET("/episodes", s.handleEpisodes)
	api.GET("/episodes/:id", s.handleEpisode)
	api.GET("/episodes/:id/frames/:step", s.handleFrame)
	return r
}

func (s *server) handleSummary(c *gin.Context) {
	db, err := s.cache.Get()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sum, err := stats.QuerySummary(c.Request.Context(), db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *server) handleTimeline(c *gin.Context) {
	fromNs := queryInt64(c, "from_ns", 0)
	toNs := queryInt64(c, "to_ns", 0)
	bucketNs := queryInt64(c, "bucket_ns", int64(5*time.Minute))
	if bucketNs <= 0 {
		bucketNs = int64(5 * time.Minute)
	}
	if fromNs <= 0 || toNs <= 0 || toNs <= fromNs {
		// Default: last 24h.
		nowNs := time.Now().UnixNano()
		toNs = nowNs
		fromNs = nowNs - int64(24*time.Hour)
	}

	db, err := s.cache.Get()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	points, err := stats.QueryTimeline(c.Request.Context(), db, fromNs, toNs, bucketNs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, TimelineResponse{FromNs: fromNs, ToNs: toNs, BucketNs: bucketNs, Points: points})
}

func (s *server) handleEpisodes(c *gin.Context) {
	eps, err := s.cache.Episodes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	limit := queryInt(c, "limit", 200)
	offset := queryInt(c, "offset", 0)
	page := stats.Paginate(eps, limit, offset, c.Query("sort"), c.Query("dir"))
	c.JSON(http.StatusOK, EpisodesResponse{Total: int64(len(eps)), Episodes: page})
}

func (s *server) handleEpisode(c *gin.Context) {
	rows, ok := s.loadEpisode(c)
	if !ok {
		return
	}
	first := rows[0]
	resp := EpisodeResponse{
		EpisodeID:     first.EpisodeID,
		Source:        first.Source,
		Seed:          first.Seed,
		GridSize:      first.GridSize,
		ParticleCount: first.ParticleCount,
		SensorNoise:   first.SensorNoise,
		Steps:         stepViews(rows),
	}
	if t, ok := rows[len(rows)-1].Target(); ok {
		resp.Target = &Point{X: t.X, Y: t.Y}
	}
	c.JSON(http.StatusOK, resp)
}

// handleFrame renders one step as a PNG. The step may carry a .png suffix.
// ?format=text returns the ASCII board instead, ?cell and ?blur tune the image.
func (s *server) handleFrame(c *gin.Context) {
	step, err := strconv.Atoi(strings.TrimSuffix(c.Param("step"), ".png"))
	if err != nil || step < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad step"})
		return
	}
	rows, ok := s.loadEpisode(c)
	if !ok {
		return
	}
	frame, err := render.FromRows(rows, step)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, render.Status(frame)+"\n"+render.Text(frame))
		return
	}

	var buf bytes.Buffer
	if err := render.PNG(&buf, frame, imageOptions(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *server) loadEpisode(c *gin.Context) ([]store.ActionRow, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing episode id"})
		return nil, false
	}
	db, err := s.cache.Get()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	file, err := stats.QueryEpisodeFile(c.Request.Context(), db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "episode not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	rows, err := store.ReadEpisode(file, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return rows, true
}
