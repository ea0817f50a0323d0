package daemonshepherd

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/seismometer/toolbox/internal/wire"
)

// DebugRouter is an optional, read-only HTTP surface alongside the Unix
// control socket: /metrics for Prometheus scraping and /debug/daemons for
// a human-friendly status snapshot. It never accepts mutating requests —
// those go through the control socket (spec §4.4, §6) — so it carries no
// auth of its own, matching how the teacher's debug endpoints are always
// paired with its control router rather than replacing it.
type DebugRouter struct {
	socketPath string
}

// NewDebugRouter builds a DebugRouter that proxies status queries to the
// daemon supervisor's control socket at socketPath.
func NewDebugRouter(socketPath string) *DebugRouter {
	return &DebugRouter{socketPath: socketPath}
}

// Handler returns an http.Handler powered by gin.
func (d *DebugRouter) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))
	g.GET("/debug/daemons", d.handleListDaemons)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, socketPath string) *http.Server {
	d := NewDebugRouter(socketPath)
	server := &http.Server{
		Addr:              addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

func (d *DebugRouter) handleListDaemons(c *gin.Context) {
	out, err := wire.DialAndRoundTrip(d.socketPath, []byte(`{"command":"list"}`))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", out)
}
