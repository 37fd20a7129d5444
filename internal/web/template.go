package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/firestick-minder/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"pkgOrUnknown": func(s string) string {
		if s == "" {
			return "unknown"
		}
		return s
	},
	"seconds": func(f float64) string {
		return fmt.Sprintf("%.0fs", f)
	},
	"timeout": func(p *int) string {
		if p == nil {
			return "disabled"
		}
		return fmt.Sprintf("%ds", *p)
	},
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="{{.Config.PollSeconds}}">
<title>Firestick Minder</title>
<style>
body { font-family: monospace; max-width: 900px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.yes { color: green; font-weight: bold; }
.no { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Firestick Minder</h1>

<h2>Devices</h2>
<table>
<tr><th>Name</th><th>Host</th><th>Foreground</th><th>Home</th><th>Media</th><th>Idle</th><th>Last action</th><th>Updated</th></tr>
{{range .Devices}}<tr>
<td>{{.Name}}</td>
<td>{{.Host}}</td>
{{if .Reachable}}<td>{{pkgOrUnknown .ForegroundPackage}}</td>
<td class="{{if .HomeScreen}}yes{{else}}no{{end}}">{{if .HomeScreen}}yes{{else}}no{{end}}</td>
<td class="{{if .MediaPlaying}}yes{{else}}no{{end}}">{{if .MediaPlaying}}playing{{else}}no{{end}}</td>
<td>{{seconds .IdleSeconds}}</td>
<td>{{.LastAction}}</td>{{else}}<td colspan="5" class="disconnected">unreachable{{if .Error}}: {{.Error}}{{end}}</td>{{end}}
<td>{{ts .UpdatedAt}}</td>
</tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{ts .StartTime}}</td></tr>
<tr><th>Last poll</th><td>{{ts .LastTick}} ({{.Ticks}} total)</td></tr>
<tr><th>Poll</th><td>{{.Config.PollSeconds}}s</td></tr>
<tr><th>Idle timeout</th><td>{{timeout .Config.IdleTimeoutSeconds}}</td></tr>
<tr><th>Config</th><td>{{if .Config.ConfigPath}}{{.Config.ConfigPath}}{{else}}environment only{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
