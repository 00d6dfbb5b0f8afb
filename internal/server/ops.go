package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/NicholasJacob1990/iudex0-sub003/internal/queue/streams"
)

// OpsHandler exposes operational read endpoints beyond /metrics. Rdb is nil
// when the queue is disabled.
type OpsHandler struct {
	Rdb    *redis.Client
	Stream string
	Group  string
}

// Register mounts ops endpoints under the provided group. It expects
// authentication to be applied by the caller.
func (h *OpsHandler) Register(g *echo.Group) {
	g.GET("/queue", h.queue)
}

// queue reports backlog and pending state of the audit consumer group.
//
//	@Summary	Backlog of the audit consumer group
//	@Tags		ops
//	@Produce	json
//	@Success	200	{object}	QueueStatusResponse
//	@Failure	503	{object}	HTTPError
//	@Router		/api/ops/queue [get]
func (h *OpsHandler) queue(c echo.Context) error {
	if h.Rdb == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "queue disabled")
	}
	m, err := streams.GroupLag(c.Request().Context(), h.Rdb, h.Stream, h.Group)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, QueueStatusResponse{
		Stream:       h.Stream,
		Group:        h.Group,
		Pending:      m.Pending,
		Lag:          m.Lag,
		Consumers:    m.Consumers,
		OldestIdleMS: m.OldestIdle.Milliseconds(),
	})
}
