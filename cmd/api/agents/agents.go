package agents

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	app "github.com/mark3748/sla-notifier/cmd/api/app"
	"github.com/mark3748/sla-notifier/cmd/api/auth"
	"github.com/mark3748/sla-notifier/internal/optin"
)

// target resolves the :email parameter and checks the caller may act on
// it. "me" is the caller's own address.
func target(c *gin.Context) (string, bool) {
	u, ok := auth.CurrentUser(c)
	if !ok {
		app.AbortError(c, http.StatusUnauthorized, "unauthenticated", "unauthenticated", nil)
		return "", false
	}
	email := strings.TrimSpace(c.Param("email"))
	if email == "me" {
		email = u.Email
	}
	if !strings.EqualFold(email, u.Email) && !u.HasRole(auth.RoleSupervisor) {
		app.AbortError(c, http.StatusForbidden, "forbidden", "cannot change another agent's preferences", nil)
		return "", false
	}
	return email, true
}

func setOptIn(a *app.App, on bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.OptIns == nil {
			app.AbortError(c, http.StatusServiceUnavailable, "optin_unavailable", "preference store not configured", nil)
			return
		}
		email, ok := target(c)
		if !ok {
			return
		}
		var err error
		if on {
			err = a.OptIns.OptIn(c.Request.Context(), email)
		} else {
			err = a.OptIns.OptOut(c.Request.Context(), email)
		}
		if errors.Is(err, optin.ErrInvalidEmail) {
			app.BadRequest(c, map[string]string{"email": err.Error()})
			return
		}
		if err != nil {
			app.Internal(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": strings.ToLower(email), "opted_in": on})
	}
}

// OptIn subscribes an agent to assignment notifications.
func OptIn(a *app.App) gin.HandlerFunc { return setOptIn(a, true) }

// OptOut unsubscribes an agent.
func OptOut(a *app.App) gin.HandlerFunc { return setOptIn(a, false) }

// Status reports whether an agent is opted in.
func Status(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.OptIns == nil {
			app.AbortError(c, http.StatusServiceUnavailable, "optin_unavailable", "preference store not configured", nil)
			return
		}
		email, ok := target(c)
		if !ok {
			return
		}
		on, err := a.OptIns.IsOptedIn(c.Request.Context(), email)
		if err != nil {
			app.Internal(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": strings.ToLower(email), "opted_in": on})
	}
}
