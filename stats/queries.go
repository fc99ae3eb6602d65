package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// EpisodeSummary describes one recorded episode by its last row.
type EpisodeSummary struct {
	EpisodeID     string  `json:"episode_id"`
	Source        string  `json:"source"`
	Seed          int64   `json:"seed"`
	StartedNs     int64   `json:"started_ns"`
	GridSize      int32   `json:"grid_size"`
	ParticleCount int32   `json:"particle_count"`
	SensorNoise   float64 `json:"sensor_noise"`
	Steps         int32   `json:"steps"`
	Score         int32   `json:"score"`
	Moves         int32   `json:"moves"`
	Certainty     float64 `json:"certainty"`
	Phase         string  `json:"phase"`
	Found         string  `json:"found"`
	File          string  `json:"file"`
}

// Summary aggregates every recorded episode.
type Summary struct {
	Episodes   int64   `json:"episodes"`
	Completed  int64   `json:"completed"`
	ByContact  int64   `json:"by_contact"`
	ByGuess    int64   `json:"by_guess"`
	WinRate    float64 `json:"win_rate"`
	MeanScore  float64 `json:"mean_score"`
	MeanMoves  float64 `json:"mean_moves"`
	MeanSteps  float64 `json:"mean_steps"`
	WrongGuess int64   `json:"wrong_guesses"`
}

// TimelinePoint counts episodes started in one time bucket.
type TimelinePoint struct {
	TNs       int64   `json:"t_ns"`
	Episodes  int64   `json:"episodes"`
	Wins      int64   `json:"wins"`
	MeanScore float64 `json:"mean_score"`
}

const lastRowsCTE = `last_rows AS (
		SELECT *
		FROM (
			SELECT *,
				row_number() OVER (PARTITION BY episode_id ORDER BY step DESC) AS rn
			FROM actions
		)
		WHERE rn = 1
	)`

// QueryEpisodes lists every episode, newest first.
func QueryEpisodes(ctx context.Context, db *sql.DB, roots []string) ([]EpisodeSummary, error) {
	query := `WITH ` + lastRowsCTE + `
	SELECT
		episode_id,
		COALESCE(source, '')::VARCHAR,
		COALESCE(seed, 0)::BIGINT,
		COALESCE(started_ns, 0)::BIGINT,
		grid_size::INTEGER,
		particle_count::INTEGER,
		sensor_noise::DOUBLE,
		step::INTEGER,
		score::INTEGER,
		moves::INTEGER,
		certainty::DOUBLE,
		phase::VARCHAR,
		found::VARCHAR,
		filename::VARCHAR
	FROM last_rows`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	out := make([]EpisodeSummary, 0, 1024)
	for rows.Next() {
		var e EpisodeSummary
		var file string
		if err := rows.Scan(&e.EpisodeID, &e.Source, &e.Seed, &e.StartedNs, &e.GridSize, &e.ParticleCount,
			&e.SensorNoise, &e.Steps, &e.Score, &e.Moves, &e.Certainty, &e.Phase, &e.Found, &file); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		e.File = makeRelativeToRoots(file, roots)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedNs != out[j].StartedNs {
			return out[i].StartedNs > out[j].StartedNs
		}
		return out[i].EpisodeID > out[j].EpisodeID
	})
	return out, nil
}

// QueryEpisodeFile returns the absolute file an episode was written to.
func QueryEpisodeFile(ctx context.Context, db *sql.DB, episodeID string) (string, error) {
	var file string
	err := db.QueryRowContext(ctx,
		`SELECT MIN(filename)::VARCHAR FROM actions WHERE episode_id = ? HAVING COUNT(*) > 0`, episodeID).Scan(&file)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("episode %s: %w", episodeID, err)
	}
	if err != nil {
		return "", fmt.Errorf("query episode file: %w", err)
	}
	return file, nil
}

// QuerySummary aggregates outcomes over the last row of every episode.
func QuerySummary(ctx context.Context, db *sql.DB) (Summary, error) {
	query := `WITH ` + lastRowsCTE + `,
	wrong AS (
		SELECT COUNT(*)::BIGINT AS n
		FROM actions
		WHERE action = 'check' AND NOT guess_correct
	)
	SELECT
		COUNT(*)::BIGINT,
		COALESCE(SUM(CASE WHEN phase = 'over' THEN 1 ELSE 0 END), 0)::BIGINT,
		COALESCE(SUM(CASE WHEN found = 'contact' THEN 1 ELSE 0 END), 0)::BIGINT,
		COALESCE(SUM(CASE WHEN found = 'guess' THEN 1 ELSE 0 END), 0)::BIGINT,
		COALESCE(AVG(score), 0)::DOUBLE,
		COALESCE(AVG(moves), 0)::DOUBLE,
		COALESCE(AVG(step), 0)::DOUBLE,
		(SELECT n FROM wrong)
	FROM last_rows`

	var s Summary
	if err := db.QueryRowContext(ctx, query).Scan(&s.Episodes, &s.Completed, &s.ByContact, &s.ByGuess,
		&s.MeanScore, &s.MeanMoves, &s.MeanSteps, &s.WrongGuess); err != nil {
		return Summary{}, fmt.Errorf("query summary: %w", err)
	}
	if s.Episodes > 0 {
		s.WinRate = float64(s.ByContact+s.ByGuess) / float64(s.Episodes)
	}
	return s, nil
}

// QueryTimeline buckets episodes by start time.
func QueryTimeline(ctx context.Context, db *sql.DB, fromNs, toNs, bucketNs int64) ([]TimelinePoint, error) {
	if bucketNs <= 0 {
		return nil, fmt.Errorf("bucket must be > 0, got %d", bucketNs)
	}
	query := `WITH ` + lastRowsCTE + `,
	bucketed AS (
		SELECT
			(? + floor((started_ns - ?)::DOUBLE / ?::DOUBLE) * ?)::BIGINT AS bucket_start_ns,
			found,
			score
		FROM last_rows
		WHERE started_ns >= ? AND started_ns <= ?
	)
	SELECT
		bucket_start_ns,
		COUNT(*)::BIGINT,
		SUM(CASE WHEN found <> 'none' THEN 1 ELSE 0 END)::BIGINT,
		AVG(score)::DOUBLE
	FROM bucketed
	GROUP BY bucket_start_ns
	ORDER BY bucket_start_ns ASC`

	rows, err := db.QueryContext(ctx, query, fromNs, fromNs, bucketNs, bucketNs, fromNs, toNs)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	points := make([]TimelinePoint, 0, 64)
	for rows.Next() {
		var p TimelinePoint
		if err := rows.Scan(&p.TNs, &p.Episodes, &p.Wins, &p.MeanScore); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func normalizeSort(sortKey, sortDir string) (string, string) {
	sk := strings.ToLower(strings.TrimSpace(sortKey))
	sd := strings.ToLower(strings.TrimSpace(sortDir))
	if sd != "asc" && sd != "desc" {
		sd = "desc"
	}
	switch sk {
	case "time", "started", "started_ns":
		sk = "started_ns"
	case "id", "episode", "episode_id":
		sk = "episode_id"
	case "score":
		sk = "score"
	case "steps":
		sk = "steps"
	case "moves":
		sk = "moves"
	case "source":
		sk = "source"
	default:
		sk = "started_ns"
		sd = "desc"
	}
	return sk, sd
}

// Paginate sorts a copy of eps and returns one page of it.
func Paginate(eps []EpisodeSummary, limit, offset int, sortKey, sortDir string) []EpisodeSummary {
	sk, sd := normalizeSort(sortKey, sortDir)

	sorted := make([]EpisodeSummary, len(eps))
	copy(sorted, eps)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		var less bool
		switch sk {
		case "started_ns":
			less = a.StartedNs < b.StartedNs
		case "episode_id":
			less = a.EpisodeID < b.EpisodeID
		case "score":
			less = a.Score < b.Score
		case "steps":
			less = a.Steps < b.Steps
		case "moves":
			less = a.Moves < b.Moves
		case "source":
			less = a.Source < b.Source
		}
		if sd == "desc" {
			return !less && !equalKey(sk, a, b)
		}
		return less
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(sorted) {
		return []EpisodeSummary{}
	}
	end := offset + limit
	if limit <= 0 || end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end]
}

func equalKey(sk string, a, b EpisodeSummary) bool {
	switch sk {
	case "started_ns":
		return a.StartedNs == b.StartedNs
	case "episode_id":
		return a.EpisodeID == b.EpisodeID
	case "score":
		return a.Score == b.Score
	case "steps":
		return a.Steps == b.Steps
	case "moves":
		return a.Moves == b.Moves
	case "source":
		return a.Source == b.Source
	}
	return true
}
