package rawhttp

import (
	"context"

	"github.com/conneroisu/feasp/pkg/feasp"
)

// AppHandler serves a feasp.App over the raw server.
type AppHandler struct {
	app *feasp.App
}

// NewAppHandler returns a Handler dispatching to app.
func NewAppHandler(app *feasp.App) *AppHandler {
	return &AppHandler{app: app}
}

func (h *AppHandler) ServeRaw(ctx context.Context, msg *Message) *feasp.Response {
	req := feasp.RequestFromParts(msg.Method, msg.Target, msg.Proto, "http", "", msg.Header, msg.Body, msg.RemoteAddr)
	return h.app.Dispatch(ctx, req)
}
