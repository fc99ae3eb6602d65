package main

import (
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/brensch/seek/render"
	"github.com/brensch/seek/store"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func queryInt64(c *gin.Context, key string, def int64) int64 {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(c *gin.Context, key string, def float64) float64 {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !(f >= 0) || math.IsInf(f, 0) {
		return def
	}
	return f
}

// Upper bounds for the frame image query parameters.
const (
	maxCellSize = 200
	maxBlur     = 20
)

// imageOptions reads ?cell and ?blur, clamped so one request cannot ask for
// an arbitrarily large image or blur kernel.
func imageOptions(c *gin.Context) render.Options {
	opts := render.Options{
		CellSize: queryInt(c, "cell", render.DefaultCellSize),
		Blur:     queryFloat(c, "blur", 0),
	}
	if opts.CellSize > maxCellSize {
		opts.CellSize = maxCellSize
	}
	if opts.Blur > maxBlur {
		opts.Blur = maxBlur
	}
	return opts
}

func parseDataRoots(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// defaultDataDirs returns the usual output directories that exist.
func defaultDataDirs() []string {
	candidates := []string{"data/episodes", "data/recorded"}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && st.IsDir() {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = append(out, candidates[0])
	}
	return out
}

func stepViews(rows []store.ActionRow) []StepView {
	out := make([]StepView, 0, len(rows))
	for _, r := range rows {
		v := StepView{
			Step:         r.Step,
			Action:       r.Action,
			DX:           r.DX,
			DY:           r.DY,
			Player:       Point{X: int(r.PlayerX), Y: int(r.PlayerY)},
			Distance:     r.Distance,
			GuessCorrect: r.GuessCorrect,
			Score:        r.Score,
			Moves:        r.Moves,
			Certainty:    r.Certainty,
			Phase:        r.Phase,
			Found:        r.Found,
		}
		if r.GuessX != nil && r.GuessY != nil {
			v.Guess = &Point{X: int(*r.GuessX), Y: int(*r.GuessY)}
		}
		out = append(out, v)
	}
	return out
}
