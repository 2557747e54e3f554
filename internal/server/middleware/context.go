package middleware

import (
	"github.com/knowledgebase/netgraph/pkg/viewer"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
)

// App holds the process-wide dependencies handlers reach through the
// request context.
type App struct {
	Sessions *viewer.Manager
	Data     viewer.DatasetProvider

	// Enqueue publishes a job to a work queue. Nil when no broker is
	// configured.
	Enqueue func(queue string, data []byte) error

	// S3 and Bucket locate import files. S3 is nil without object storage.
	S3     s3.ListObjectsV2APIClient
	Bucket string
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{c, app})
		}
	}
}
