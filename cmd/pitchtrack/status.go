package main

import (
	"net/http"
	"sync"

	"github.com/banshee-data/pitch.report/internal/httputil"
	"github.com/banshee-data/pitch.report/internal/match/pipeline"
	"github.com/banshee-data/pitch.report/internal/monitoring"
)

const (
	stateQueued   = "queued"
	stateRunning  = "running"
	stateComplete = "complete"
	stateFailed   = "failed"
)

type videoStatus struct {
	VideoID   string   `json:"video_id"`
	Source    string   `json:"source"`
	State     string   `json:"state"`
	Frames    int      `json:"frames"`
	LastFrame int      `json:"last_frame"`
	Tracks    int      `json:"tracks,omitempty"`
	Notes     []string `json:"quality_notes,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// statusBoard tracks the progress of every video in this invocation and
// serves it as JSON on the debug listener.
type statusBoard struct {
	mu     sync.Mutex
	videos map[string]*videoStatus
	order  []string
}

func newStatusBoard() *statusBoard {
	return &statusBoard{videos: make(map[string]*videoStatus)}
}

func (b *statusBoard) add(id, source string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.videos[id]; !ok {
		b.order = append(b.order, id)
	}
	b.videos[id] = &videoStatus{VideoID: id, Source: source, State: stateQueued, LastFrame: -1}
}

func (b *statusBoard) frame(id string, frameNumber int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.videos[id]
	if !ok {
		return
	}
	if v.State == stateQueued {
		v.State = stateRunning
		monitoring.Logf("video %s: started", id)
	}
	v.Frames++
	v.LastFrame = frameNumber
}

func (b *statusBoard) finish(id string, res *pipeline.Result, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.videos[id]
	if !ok {
		return
	}
	if err != nil {
		v.State = stateFailed
		v.Error = err.Error()
		return
	}
	v.State = stateComplete
	if res != nil {
		v.Tracks = len(res.Tracks)
		v.Notes = append([]string(nil), res.QualityNotes...)
	}
	monitoring.Logf("video %s: complete with %d tracks", id, v.Tracks)
}

// snapshot returns copies of every status in insertion order.
func (b *statusBoard) snapshot() []videoStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]videoStatus, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.videos[id])
	}
	return out
}

// ServeHTTP lists every video, or the one named by the video query
// parameter.
func (b *statusBoard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	all := b.snapshot()
	id := r.URL.Query().Get("video")
	if id == "" {
		httputil.WriteJSONOK(w, all)
		return
	}
	for _, v := range all {
		if v.VideoID == id {
			httputil.WriteJSONOK(w, v)
			return
		}
	}
	httputil.NotFound(w, "unknown video "+id)
}
