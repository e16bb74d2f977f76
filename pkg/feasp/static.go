package feasp

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// staticTypes maps the extensions answered from the static directory to
// their mimetypes.
var staticTypes = map[string]string{
	".ico":  "image/x-icon",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".css":  "text/css",
	".js":   "application/javascript",
	".txt":  "text/plain",
}

// staticMimetype reports whether urlPath names a static asset.
func staticMimetype(urlPath string) (string, bool) {
	mimetype, ok := staticTypes[strings.ToLower(path.Ext(urlPath))]
	return mimetype, ok
}

// serveStatic reads urlPath from the static file system. Paths that try to
// leave the directory are treated as missing.
func (a *App) serveStatic(urlPath, mimetype string) *Response {
	if a.static == nil {
		return ErrorPage(http.StatusNotFound)
	}
	for _, part := range strings.Split(urlPath, "/") {
		if part == ".." {
			return ErrorPage(http.StatusNotFound)
		}
	}

	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if !fs.ValidPath(name) {
		return ErrorPage(http.StatusNotFound)
	}

	data, err := fs.ReadFile(a.static, name)
	if err != nil {
		return ErrorPage(http.StatusNotFound)
	}
	return NewResponse(data, mimetype, http.StatusOK)
}
