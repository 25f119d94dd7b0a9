package static

import (
	"embed"
	"io"
	"io/fs"
	"net/http"
	pathpkg "path"
	"strings"

	"github.com/gin-gonic/gin"
)

const webDir = "web"

//go:embed all:web
var webFiles embed.FS

// RegisterUIRoutes wires /* to the embedded client bundle. Meeting join
// links (/m/:id) resolve through the SPA fallback; the client reads its
// runtime settings from /api/v1/config.
func RegisterUIRoutes(router *gin.Engine) {
	// NOTE: Gin can't combine a root catch-all (e.g. /*filepath) with other
	// top-level routes like /api. Use NoRoute as an SPA fallback instead.
	router.NoRoute(uiHandler())
}

func uiHandler() gin.HandlerFunc {
	webFS, err := fs.Sub(webFiles, webDir)
	if err != nil {
		return func(c *gin.Context) {
			c.String(http.StatusServiceUnavailable, "client bundle is missing")
		}
	}

	fileServer := http.FileServer(http.FS(webFS))

	return func(c *gin.Context) {
		// Never fall back to SPA for API paths.
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Status(http.StatusNotFound)
			return
		}

		requestPath := strings.TrimPrefix(c.Request.URL.Path, "/")
		if requestPath == "" || requestPath == "index.html" {
			serveIndex(c, webFS)
			return
		}

		// Normalize path and prevent path traversal attempts.
		cleaned := pathpkg.Clean("/" + requestPath)
		if strings.HasPrefix(cleaned, "/..") {
			c.Status(http.StatusNotFound)
			return
		}
		requestPath = strings.TrimPrefix(cleaned, "/")
		if requestPath == "" {
			serveIndex(c, webFS)
			return
		}

		info, err := fs.Stat(webFS, requestPath)
		if err != nil || info.IsDir() {
			serveIndex(c, webFS)
			return
		}

		// Make sure the file server sees the cleaned path.
		c.Request.URL.Path = "/" + requestPath
		fileServer.ServeHTTP(c.Writer, c.Request)
		c.Abort()
	}
}

func serveIndex(c *gin.Context, webFS fs.FS) {
	indexFile, err := webFS.Open("index.html")
	if err != nil {
		c.String(http.StatusServiceUnavailable, "client entrypoint not found")
		return
	}
	defer indexFile.Close()

	content, err := io.ReadAll(indexFile)
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to read client entrypoint")
		return
	}

	// The index must never be cached; asset names under it are fingerprinted.
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	c.String(http.StatusOK, string(content))
}
