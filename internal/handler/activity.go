package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bean-counter/internal/realtime"
)

// ActivityHandler streams activity events as server-sent events.
type ActivityHandler struct {
	// Subscribe is nil when Redis is not configured.
	Subscribe func(ctx context.Context) <-chan realtime.ActivityEvent
	Heartbeat time.Duration
}

func (h *ActivityHandler) Stream(c echo.Context) error {
	if h.Subscribe == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "activity stream unavailable")
	}
	ctx := c.Request().Context()
	events := h.Subscribe(ctx)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	beat := h.Heartbeat
	if beat <= 0 {
		beat = 25 * time.Second
	}
	tick := time.NewTicker(beat)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: activity\ndata: %s\n\n", b); err != nil {
				return nil
			}
			w.Flush()
		case <-tick.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
