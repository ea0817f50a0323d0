package hailerter

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/seismometer/toolbox/internal/wire"
)

// DebugRouter is hailerter's read-only HTTP surface, mirroring
// daemonshepherd's gin-based DebugRouter but built on echo, giving the
// pack's second HTTP toolkit an exercised home of its own (see DESIGN.md).
type DebugRouter struct {
	socketPath string
}

// NewDebugRouter builds a DebugRouter that proxies flow queries to
// hailerter's own control socket at socketPath.
func NewDebugRouter(socketPath string) *DebugRouter {
	return &DebugRouter{socketPath: socketPath}
}

// Handler returns an http.Handler powered by echo.
func (d *DebugRouter) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/debug/flows", d.handleListFlows)
	return e
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, socketPath string) *http.Server {
	d := NewDebugRouter(socketPath)
	server := &http.Server{
		Addr:              addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

func (d *DebugRouter) handleListFlows(c echo.Context) error {
	out, err := wire.DialAndRoundTrip(d.socketPath, []byte(`{"command":"list"}`))
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error()})
	}
	return c.JSONBlob(http.StatusOK, out)
}
