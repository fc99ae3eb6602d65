package main

import (
	"context"
	"encoding/json"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brensch/seek/agent"
	"github.com/brensch/seek/game"
	"github.com/brensch/seek/render"
	"github.com/brensch/seek/stats"
	"github.com/brensch/seek/store"
)

func setupServer(t *testing.T) (*gin.Engine, []agent.Outcome) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	var rows []store.ActionRow
	var outs []agent.Outcome
	for seed := int64(1); seed <= 3; seed++ {
		g := game.New(rand.New(rand.NewSource(seed)))
		if err := g.NewEpisode(game.DefaultConfig); err != nil {
			t.Fatalf("NewEpisode: %v", err)
		}
		out, err := agent.PlayEpisode(context.Background(), g, agent.NewSeeker(0, 0), agent.Options{
			MaxActions: 100,
			Source:     "test",
			Seed:       seed,
			Record:     true,
		})
		if err != nil {
			t.Fatalf("PlayEpisode: %v", err)
		}
		rows = append(rows, out.Rows...)
		outs = append(outs, out)
	}
	if _, err := store.WriteBatchParquetAtomic(dir, rows); err != nil {
		t.Fatalf("WriteBatchParquetAtomic: %v", err)
	}

	cache := stats.NewDBCache([]string{dir}, time.Minute)
	t.Cleanup(func() { _ = cache.Close() })
	return newRouter(cache), outs
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestSummaryAndEpisodes(t *testing.T) {
	r, outs := setupServer(t)

	w := get(t, r, "/api/summary")
	if w.Code != http.StatusOK {
		t.Fatalf("summary status=%d body=%s", w.Code, w.Body.String())
	}
	var sum stats.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.Episodes != int64(len(outs)) {
		t.Fatalf("episodes=%d want=%d", sum.Episodes, len(outs))
	}

	w = get(t, r, "/api/episodes?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("episodes status=%d", w.Code)
	}
	var eps EpisodesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &eps); err != nil {
		t.Fatalf("decode episodes: %v", err)
	}
	if eps.Total != int64(len(outs)) || len(eps.Episodes) != 2 {
		t.Fatalf("total=%d page=%d", eps.Total, len(eps.Episodes))
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestEpisodeDetail(t *testing.T) {
	r, outs := setupServer(t)
	o := outs[0]

	w := get(t, r, "/api/episodes/"+o.EpisodeID)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var ep EpisodeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &ep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ep.Steps) != o.Actions+1 {
		t.Fatalf("steps=%d want=%d", len(ep.Steps), o.Actions+1)
	}
	if (ep.Target != nil) != o.Completed {
		t.Fatalf("target=%v completed=%v", ep.Target, o.Completed)
	}

	if w := get(t, r, "/api/episodes/nope"); w.Code != http.StatusNotFound {
		t.Fatalf("missing episode status=%d", w.Code)
	}
}

func TestFrame(t *testing.T) {
	r, outs := setupServer(t)
	id := outs[0].EpisodeID

	for _, path := range []string{"/api/episodes/" + id + "/frames/0.png", "/api/episodes/" + id + "/frames/1?cell=10&blur=1"} {
		w := get(t, r, path)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/png" {
			t.Fatalf("%s content-type=%q", path, ct)
		}
		if _, err := png.Decode(w.Body); err != nil {
			t.Fatalf("%s decode: %v", path, err)
		}
	}

	w := get(t, r, "/api/episodes/"+id+"/frames/0?format=text")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "P") {
		t.Fatalf("text frame status=%d body=%q", w.Code, w.Body.String())
	}

	if w := get(t, r, "/api/episodes/"+id+"/frames/abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad step status=%d", w.Code)
	}
	if w := get(t, r, "/api/episodes/"+id+"/frames/100000"); w.Code != http.StatusNotFound {
		t.Fatalf("missing step status=%d", w.Code)
	}
}

func TestWatchRootsRefreshesOnNewParquet(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var refreshes atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchRoots(ctx, []string{dir}, 20*time.Millisecond, func() error {
			refreshes.Add(1)
			return nil
		})
	}()
	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "batch_1.parquet"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for refreshes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if refreshes.Load() == 0 {
		t.Fatalf("no refresh after new parquet file")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watchRoots: %v", err)
	}
}

func TestParseDataRoots(t *testing.T) {
	roots := parseDataRoots(" /a, ,/b,/a ")
	if len(roots) != 2 || roots[0] != "/a" || roots[1] != "/b" {
		t.Fatalf("roots=%v", roots)
	}
}

func TestTimelineDefaultsToLastDay(t *testing.T) {
	r, outs := setupServer(t)

	w := get(t, r, "/api/timeline?bucket_ns=86400000000000")
	if w.Code != http.StatusOK {
		t.Fatalf("timeline status=%d body=%s", w.Code, w.Body.String())
	}
	var resp TimelineResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if resp.ToNs-resp.FromNs != int64(24*time.Hour) {
		t.Fatalf("window=%d want 24h", resp.ToNs-resp.FromNs)
	}
	var total int64
	for _, p := range resp.Points {
		total += p.Episodes
	}
	if total != int64(len(outs)) {
		t.Fatalf("episodes in timeline=%d want=%d", total, len(outs))
	}
}

func TestImageOptionsClamped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		query string
		cell  int
		blur  float64
	}{
		{"", render.DefaultCellSize, 0},
		{"?cell=40&blur=2.5", 40, 2.5},
		{"?cell=100000&blur=1e8", maxCellSize, maxBlur},
		{"?blur=-3", render.DefaultCellSize, 0},
		{"?blur=NaN", render.DefaultCellSize, 0},
		{"?blur=Inf", render.DefaultCellSize, 0},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/api/episodes/x/frames/0"+tc.query, nil)
		opts := imageOptions(c)
		if opts.CellSize != tc.cell || opts.Blur != tc.blur {
			t.Fatalf("%q: cell=%d blur=%v want cell=%d blur=%v", tc.query, opts.CellSize, opts.Blur, tc.cell, tc.blur)
		}
	}
}
