package app

import (
	"bytes"
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

var pages = template.Must(template.New("layout").Parse(`
{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
dt { font-weight: 600; }
.error { color: #b00020; }
.hint { color: #555; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{end}}

{{define "foot"}}
</body>
</html>
{{end}}

{{define "home"}}{{template "head" .}}
<p>Authorization server: <code>{{.BackendURL}}</code></p>
{{if .Token}}
<p>Logged in.</p>
<dl>
<dt>Token type</dt><dd>{{.Token.TokenType}}</dd>
<dt>Scope</dt><dd>{{.Token.Scope}}</dd>
<dt>Expires</dt><dd>{{if .Token.Expiry.IsZero}}not reported{{else}}{{.Token.Expiry.Format "2006-01-02 15:04:05 MST"}}{{if .Expired}} (expired){{end}}{{end}}</dd>
<dt>Refresh token</dt><dd>{{if .Token.RefreshToken}}present{{else}}none{{end}}</dd>
</dl>
<ul>
<li><a href="/org">View organization</a></li>
<li><a href="/userinfo">View user info</a></li>
</ul>
{{if .Token.RefreshToken}}<form method="post" action="/refresh"><button type="submit">Refresh token</button></form>{{end}}
<form method="post" action="/logout"><button type="submit">Log out</button></form>
{{else}}
<p>Not logged in.</p>
<p><a href="/login">Log in with OAuth 2.0</a></p>
{{end}}
{{template "foot" .}}{{end}}

{{define "error"}}{{template "head" .}}
<p class="error">{{.Message}}</p>
{{if .Hint}}<p class="hint">{{.Hint}}</p>{{end}}
{{if .RequestID}}<p class="hint">Request ID: <code>{{.RequestID}}</code></p>{{end}}
<p><a href="/">Back to start</a></p>
{{template "foot" .}}{{end}}
`))

type errorPage struct {
	Title     string
	Message   string
	Hint      string
	RequestID string
}

// render executes a page template into a buffer first so a template failure
// never produces a half-written response.
func (a *Application) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		a.Logger.Error("failed to render page",
			zap.String("request_id", getRequestID(r)),
			zap.String("template", name),
			zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (a *Application) renderError(w http.ResponseWriter, r *http.Request, status int, message, hint string) {
	a.render(w, r, status, "error", errorPage{
		Title:     http.StatusText(status),
		Message:   message,
		Hint:      hint,
		RequestID: getRequestID(r),
	})
}
