package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/minio/minio-go/v7"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/mark3748/sla-notifier/internal/calendar"
	"github.com/mark3748/sla-notifier/internal/config"
	"github.com/mark3748/sla-notifier/internal/optin"
	"github.com/mark3748/sla-notifier/internal/sla"
)

// ObjectStore is the subset of MinIO the exports use.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// FsObjectStore implements ObjectStore on the local filesystem for
// development and tests.
type FsObjectStore struct {
	Base string
}

func (f *FsObjectStore) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	base := filepath.Clean(f.Base)
	dir := base
	if bucketName != "" {
		dir = filepath.Join(base, bucketName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return minio.UploadInfo{}, err
	}
	clean := filepath.Clean(filepath.Join(dir, objectName))
	// keep the object inside the bucket directory
	if !strings.HasPrefix(clean, dir+string(os.PathSeparator)) {
		return minio.UploadInfo{}, os.ErrPermission
	}
	tmp := clean + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	n, err := io.Copy(out, reader)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return minio.UploadInfo{}, err
	}
	if err := os.Rename(tmp, clean); err != nil {
		_ = os.Remove(tmp)
		return minio.UploadInfo{}, err
	}
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: n}, nil
}

// App wires dependencies and the Gin router.
type App struct {
	Cfg      config.Config
	R        *gin.Engine
	Reporter *sla.Reporter
	Resolver *calendar.Resolver
	Keyf     jwt.Keyfunc
	M        ObjectStore
	Q        *redis.Client
	OptIns   *optin.Registry
	Cache    *cache.Cache
}

// NewApp constructs an App with injected dependencies. keyf, store and q may
// be nil.
func NewApp(cfg config.Config, rep *sla.Reporter, res *calendar.Resolver, keyf jwt.Keyfunc, store ObjectStore, q *redis.Client) *App {
	a := &App{
		Cfg:      cfg,
		R:        gin.New(),
		Reporter: rep,
		Resolver: res,
		Keyf:     keyf,
		M:        store,
		Q:        q,
		Cache:    cache.New(cfg.StatsCacheTTL, time.Minute),
	}
	if q != nil {
		a.OptIns = optin.New(q, "")
	}
	a.R.Use(gin.Recovery())
	a.R.Use(RequestID())
	a.R.Use(Logger())
	a.R.Use(Errors())
	return a
}

// ObjCtx bounds object store calls.
func (a *App) ObjCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 30*time.Second)
}
