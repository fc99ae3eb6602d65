package main

import "github.com/brensch/seek/stats"

type EpisodesResponse struct {
	Total    int64                  `json:"total"`
	Episodes []stats.EpisodeSummary `json:"episodes"`
}

type TimelineResponse struct {
	FromNs   int64                 `json:"from_ns"`
	ToNs     int64                 `json:"to_ns"`
	BucketNs int64                 `json:"bucket_ns"`
	Points   []stats.TimelinePoint `json:"points"`
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// StepView is one recorded action without its particle cloud.
type StepView struct {
	Step         int32    `json:"step"`
	Action       string   `json:"action"`
	DX           int32    `json:"dx,omitempty"`
	DY           int32    `json:"dy,omitempty"`
	Player       Point    `json:"player"`
	Distance     *float64 `json:"distance,omitempty"`
	Guess        *Point   `json:"guess,omitempty"`
	GuessCorrect bool     `json:"guess_correct,omitempty"`
	Score        int32    `json:"score"`
	Moves        int32    `json:"moves"`
	Certainty    float64  `json:"certainty"`
	Phase        string   `json:"phase"`
	Found        string   `json:"found"`
}

type EpisodeResponse struct {
	EpisodeID     string     `json:"episode_id"`
	Source        string     `json:"source"`
	Seed          int64      `json:"seed"`
	GridSize      int32      `json:"grid_size"`
	ParticleCount int32      `json:"particle_count"`
	SensorNoise   float64    `json:"sensor_noise"`
	Target        *Point     `json:"target,omitempty"`
	Steps         []StepView `json:"steps"`
}
