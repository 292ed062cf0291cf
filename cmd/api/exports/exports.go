package exports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	app "github.com/mark3748/sla-notifier/cmd/api/app"
	"github.com/mark3748/sla-notifier/cmd/api/tracking"
	"github.com/mark3748/sla-notifier/internal/s3"
	"github.com/mark3748/sla-notifier/internal/sla"
)

const linkTTL = 15 * time.Minute

var header = []string{
	"ticket_id", "sla_name", "sla_type", "status", "assigned_at", "deadline",
	"is_paused", "assignee_name", "assignee_email", "alerts_sent",
	"unwarranted", "business_elapsed_seconds", "hit_at",
}

// WriteCSV writes records with a header row.
func WriteCSV(buf *bytes.Buffer, recs []sla.Record) error {
	w := csv.NewWriter(buf)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.TicketID,
			r.SLAName,
			string(r.SLAType),
			string(r.SLAStatus),
			formatTime(r.AssignedAt),
			formatTime(r.Deadline),
			strconv.FormatBool(r.IsPaused),
			r.AssigneeName,
			r.AssigneeEmail,
			strconv.Itoa(len(r.AlertHistory)),
			strconv.FormatBool(r.HasUnwarrantedTag),
			strconv.FormatInt(r.BusinessElapsedSeconds, 10),
			formatTime(r.HitAt),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Records uploads the tracked records matching the query filter as CSV and
// returns where to fetch it.
func Records(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.M == nil {
			app.AbortError(c, http.StatusServiceUnavailable, "exports_unavailable", "object store not configured", nil)
			return
		}
		f, bad := tracking.ParseFilter(c)
		if bad != nil {
			app.BadRequest(c, bad)
			return
		}
		ctx := c.Request.Context()
		recs, err := a.Reporter.GetAllTrackedTickets(ctx, f)
		if err != nil {
			app.Internal(c, err)
			return
		}
		buf := &bytes.Buffer{}
		if err := WriteCSV(buf, recs); err != nil {
			app.Internal(c, err)
			return
		}
		bucket := a.Cfg.MinIO.Bucket
		key := "sla-export-" + uuid.New().String() + ".csv"
		oc, cancel := a.ObjCtx(ctx)
		defer cancel()
		if _, err := a.M.PutObject(oc, bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{ContentType: "text/csv"}); err != nil {
			app.Internal(c, err)
			return
		}
		resp := gin.H{"key": key, "rows": len(recs)}
		if mc, ok := a.M.(*minio.Client); ok {
			p := s3.Presigner{Client: mc, Bucket: bucket, MaxTTL: time.Hour}
			u, err := p.PresignGet(oc, key, key, linkTTL)
			if err != nil {
				app.Internal(c, err)
				return
			}
			resp["url"] = u
		} else if a.Cfg.MinIO.Endpoint != "" {
			scheme := "http"
			if a.Cfg.MinIO.UseSSL {
				scheme = "https"
			}
			resp["url"] = fmt.Sprintf("%s://%s/%s/%s", scheme, a.Cfg.MinIO.Endpoint, bucket, key)
		}
		c.JSON(http.StatusCreated, resp)
	}
}
