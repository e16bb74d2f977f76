package server

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
)

// reloadScript reconnects to the reload endpoint and refreshes the page on
// a reload message.
const reloadScript = `<script>(function(){` +
	`var p=location.protocol==="https:"?"wss:":"ws:";` +
	`var ws=new WebSocket(p+"//"+location.host+"` + ReloadPath + `");` +
	`ws.onmessage=function(e){try{if(JSON.parse(e.data).type==="reload"){location.reload();}}catch(_){}};` +
	`})();</script>`

// bufferedWriter holds a response so it can be rewritten before sending.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

// injectReload adds the reload script before </body> in HTML responses.
func injectReload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := &bufferedWriter{header: w.Header()}
		next.ServeHTTP(buf, r)

		status := buf.status
		if status == 0 {
			status = http.StatusOK
		}
		body := buf.body.Bytes()
		if r.Method != http.MethodHead && strings.HasPrefix(buf.header.Get("Content-Type"), "text/html") {
			if injected, ok := insertBeforeBodyEnd(body, reloadScript); ok {
				body = injected
				buf.header.Set("Content-Length", strconv.Itoa(len(body)))
			}
		}

		w.WriteHeader(status)
		w.Write(body)
	})
}

// insertBeforeBodyEnd inserts snippet before the last </body> tag, matched
// case-insensitively.
func insertBeforeBodyEnd(page []byte, snippet string) ([]byte, bool) {
	i := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if i < 0 {
		return page, false
	}
	out := make([]byte, 0, len(page)+len(snippet))
	out = append(out, page[:i]...)
	out = append(out, snippet...)
	out = append(out, page[i:]...)
	return out, true
}
