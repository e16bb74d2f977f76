// Package errors provides Feasp's structured error type, the mapping from
// errors to HTTP statuses, and the HTML pages rendered for error statuses.
package errors

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// reasonPhrases is the status line vocabulary Feasp answers with. Codes not
// in the table fall back to net/http's text, upper-cased.
var reasonPhrases = map[int]string{
	100: "CONTINUE",
	101: "SWITCHING PROTOCOLS",
	200: "OK",
	201: "CREATED",
	202: "ACCEPTED",
	203: "NON-AUTHORITATIVE INFORMATION",
	204: "NO CONTENT",
	205: "RESET CONTENT",
	206: "PARTIAL CONTENT",
	300: "MULTIPLE CHOICES",
	301: "MOVED PERMANENTLY",
	302: "FOUND",
	303: "SEE OTHER",
	304: "NOT MODIFIED",
	305: "USE PROXY",
	306: "RESERVED",
	307: "TEMPORARY REDIRECT",
	400: "BAD REQUEST",
	401: "UNAUTHORIZED",
	402: "PAYMENT REQUIRED",
	403: "FORBIDDEN",
	404: "NOT FOUND",
	405: "METHOD NOT ALLOWED",
	406: "NOT ACCEPTABLE",
	407: "PROXY AUTHENTICATION REQUIRED",
	408: "REQUEST TIMEOUT",
	409: "CONFLICT",
	410: "GONE",
	411: "LENGTH REQUIRED",
	412: "PRECONDITION FAILED",
	413: "REQUEST ENTITY TOO LARGE",
	414: "REQUEST-URI TOO LONG",
	415: "UNSUPPORTED MEDIA TYPE",
	416: "REQUESTED RANGE NOT SATISFIABLE",
	417: "EXPECTATION FAILED",
	500: "INTERNAL SERVER ERROR",
	501: "NOT IMPLEMENTED",
	502: "BAD GATEWAY",
	503: "SERVICE UNAVAILABLE",
	504: "GATEWAY TIMEOUT",
	505: "HTTP VERSION NOT SUPPORTED",
}

// ReasonPhrase returns the upper-case reason phrase for a status code.
func ReasonPhrase(status int) string {
	if phrase, ok := reasonPhrases[status]; ok {
		return phrase
	}
	if text := http.StatusText(status); text != "" {
		return strings.ToUpper(text)
	}
	return "UNKNOWN"
}

// Page returns the body, mimetype and status of the canned page for status.
func Page(status int) (string, string, int) {
	return fmt.Sprintf("<h1>%s</h1>", ReasonPhrase(status)), "text/html", status
}

// PageFor returns the canned page for the status err maps to.
func PageFor(err error) (string, string, int) {
	return Page(StatusOf(err))
}

// Overlay renders a development error page describing err. It is used in
// place of the canned 500 page when the server runs in development.
func Overlay(err error) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Feasp error</title></head>
<body style="margin:0;font-family:Menlo,Monaco,monospace;font-size:14px;background:#1a202c;color:#e2e8f0">
<div id="feasp-error-overlay" style="max-width:1000px;margin:0 auto;padding:20px">
<h2 style="color:#ff6b6b">`)
	b.WriteString(ReasonPhrase(StatusOf(err)))
	b.WriteString("</h2>\n")

	var fe *FeaspError
	if As(err, &fe) {
		fmt.Fprintf(&b, `<div style="color:#feca57">%s</div>`+"\n", html.EscapeString(string(fe.Type)))
		if fe.Template != "" {
			location := fe.Template
			if fe.Line > 0 {
				location = fmt.Sprintf("%s:%d", fe.Template, fe.Line)
			}
			fmt.Fprintf(&b, `<div style="color:#a0aec0">%s</div>`+"\n", html.EscapeString(location))
		}
	}

	fmt.Fprintf(&b, `<pre style="background:#2d3748;padding:15px;border-left:4px solid #ff6b6b;white-space:pre-wrap">%s</pre>`+"\n",
		html.EscapeString(err.Error()))
	b.WriteString("</div></body></html>")

	return b.String()
}
