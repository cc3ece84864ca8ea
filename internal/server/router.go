package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/jarmgr/internal/daemon"
	"github.com/loykin/jarmgr/internal/lifecycle"
	"github.com/loykin/jarmgr/internal/metrics"
	"github.com/loykin/jarmgr/internal/registry"
)

// Source is what the router reads unit state from.
type Source interface {
	List() ([]registry.Entry, error)
	Status(id string) lifecycle.Status
}

// Maintainer runs one maintenance pass on demand.
type Maintainer interface {
	RunNow() daemon.Report
}

// Router exposes the daemon's view of managed units over HTTP.
// Endpoints:
//
//	GET  {basePath}/status            live units (stale entries are evicted)
//	GET  {basePath}/status?name=<id>  one unit
//	GET  {basePath}/metrics           prometheus exposition
//	POST {basePath}/maintenance       run a maintenance pass now
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	src      Source
	maint    Maintainer
	basePath string
}

// NewRouter constructs a Router. maint may be nil, which disables the
// maintenance endpoint.
func NewRouter(src Source, maint Maintainer, basePath string) *Router {
	return &Router{src: src, maint: maint, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	if r.maint != nil {
		group.POST("/maintenance", r.handleMaintenance)
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Callers shut it down with http.Server's Shutdown or Close. onErr, when
// set, receives the error if the server stops for any other reason.
func NewServer(addr string, r *Router, onErr func(error)) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) && onErr != nil {
			onErr(err)
		}
	}()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type unitResp struct {
	ID          string    `json:"id"`
	Running     bool      `json:"running"`
	PID         int       `json:"pid,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	RSSBytes    uint64    `json:"rss_bytes,omitempty"`
	LogPath     string    `json:"log_path"`
	LogSize     int64     `json:"log_size"`
	RotationDue bool      `json:"rotation_due"`
	SavedArgs   []string  `json:"saved_args,omitempty"`
}

type listResp struct {
	ID  string `json:"id"`
	PID int    `json:"pid"`
}

type maintenanceResp struct {
	Live     int      `json:"live"`
	Rotated  []string `json:"rotated"`
	Deleted  int      `json:"deleted"`
	Evicted  int      `json:"evicted"`
	Duration string   `json:"duration"`
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		entries, err := r.src.List()
		if err != nil {
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
			return
		}
		out := make([]listResp, 0, len(entries))
		for _, e := range entries {
			out = append(out, listResp{ID: e.ID, PID: e.PID})
		}
		writeJSON(c, http.StatusOK, out)
		return
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	st := r.src.Status(name)
	writeJSON(c, http.StatusOK, unitResp{
		ID:          st.ID,
		Running:     st.Running,
		PID:         st.PID,
		StartedAt:   st.Info.StartedAt,
		RSSBytes:    st.Info.RSSBytes,
		LogPath:     st.LogPath,
		LogSize:     st.LogSize,
		RotationDue: st.RotationDue,
		SavedArgs:   st.SavedArgs,
	})
}

func (r *Router) handleMaintenance(c *gin.Context) {
	rep := r.maint.RunNow()
	writeJSON(c, http.StatusOK, maintenanceResp{
		Live:     rep.Live,
		Rotated:  append([]string{}, rep.Rotated...),
		Deleted:  rep.Deleted,
		Evicted:  rep.Evicted,
		Duration: rep.Duration.String(),
	})
}
