package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	app "github.com/mark3748/sla-notifier/cmd/api/app"
	"github.com/mark3748/sla-notifier/cmd/api/auth"
	"github.com/mark3748/sla-notifier/internal/events"
)

const heartbeat = 25 * time.Second

// Stream relays worker events to the caller using Server-Sent Events. Agents
// only see events about their own tickets. A comment line is written every
// heartbeat to keep idle connections open.
func Stream(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Q == nil {
			app.AbortError(c, http.StatusServiceUnavailable, "events_unavailable", "event bus not configured", nil)
			return
		}
		u, _ := auth.CurrentUser(c)
		all := u.HasRole(auth.RoleSupervisor)

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		ctx := c.Request.Context()
		sub := a.Q.Subscribe(ctx, events.Channel)
		defer sub.Close()
		if _, err := sub.Receive(ctx); err != nil {
			app.Internal(c, err)
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Status(http.StatusOK)
		fmt.Fprint(c.Writer, ": connected\n\n")
		flusher.Flush()

		heart := time.NewTicker(heartbeat)
		defer heart.Stop()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev events.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Ctx(ctx).Warn().Err(err).Msg("decode event")
					continue
				}
				if !ev.VisibleTo(u.Email, all) {
					continue
				}
				fmt.Fprintf(c.Writer, "event: %s\n", ev.Type)
				fmt.Fprintf(c.Writer, "data: %s\n\n", msg.Payload)
				flusher.Flush()
			case <-heart.C:
				fmt.Fprint(c.Writer, ": heartbeat\n\n")
				flusher.Flush()
			}
		}
	}
}
