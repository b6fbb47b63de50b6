package handler

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/engine"
)

// eventBuffer is how many events a slow SSE client may lag behind before
// it starts missing them.
const eventBuffer = 256

// Events returns a handler for GET /api/v1/events. Every reporter event is
// sent as one SSE message named after its kind: status, reset_logs or
// user_action_required.
func Events(rep *engine.Reporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch, cancel := rep.Subscribe(eventBuffer)
		defer cancel()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		c.Stream(func(io.Writer) bool {
			select {
			case ev, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent(string(ev.Kind), ev)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}
