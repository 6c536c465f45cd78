package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sleep-machine/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		switch {
		case days > 0:
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		case h > 0:
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		case m > 0:
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("Mon 15:04")
	},
	"orUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sleep Machine</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.locked { color: red; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Sleep Machine<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Device</h2>
<table>
<tr><th>Mode</th><td id="mode">{{orUnknown (printf "%s" .State.Mode)}}</td></tr>
<tr><th>Alarm</th><td id="alarm">{{clock .State.AlarmTime}}</td></tr>
<tr><th>Adjust</th><td id="direction">{{printf "%s" .State.Adjust}}</td></tr>
<tr><th>Heater</th><td id="heater" class="{{if .State.HeaterOn}}on{{else}}off{{end}}">{{if .State.HeaterOn}}on{{else}}off{{end}}</td></tr>
<tr><th>Locked</th><td id="locked" class="{{if .Locked}}locked{{end}}">{{if .Locked}}yes{{else}}no{{end}}</td></tr>
<tr><th>Last event</th><td id="last-event">{{if .LastEvent}}{{.LastEvent.Type}} at {{clock .LastEvent.Timestamp}}{{else}}-{{end}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Sessions</th><td id="sessions">{{.Counts.Sessions}}</td></tr>
<tr><th>Alarms</th><td id="alarms">{{.Counts.Alarms}}</td></tr>
<tr><th>Clicks</th><td id="clicks">{{.Counts.Clicks}}</td></tr>
<tr><th>Ignored clicks</th><td>{{.Counts.Ignored}}</td></tr>
<tr><th>Rotary pulses</th><td>{{.Edges.RotaryPulses}}</td></tr>
<tr><th>Button presses</th><td>{{.Edges.ButtonPresses}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Speaker</th><td>{{if .Config.Speaker}}{{.Config.Speaker}}{{else}}none{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Click window</th><td>{{.Config.ClickWindowMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Heater API</th><td>{{if .Config.HeaterEnabled}}enabled{{else}}disabled{{end}}</td></tr>
<tr><th>Morning announcement</th><td>{{if .Config.MorningEnabled}}enabled{{else}}disabled{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  function set(id, text) { document.getElementById(id).textContent = text; }
  function clock(iso) {
    if (!iso) { return "-"; }
    var d = new Date(iso);
    return d.toLocaleDateString(undefined, {weekday: "short"}) + " " +
      d.toLocaleTimeString(undefined, {hour: "2-digit", minute: "2-digit", hour12: false});
  }
  function connect() {
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onopen = function() { dot.className = "live-dot ok"; dot.title = "live"; };
    ws.onclose = function() {
      dot.className = "live-dot err"; dot.title = "offline";
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(m) {
      try {
        var s = JSON.parse(m.data).status;
        set("mode", s.mode);
        set("alarm", clock(s.alarm_time));
        set("direction", s.direction);
        set("heater", s.heater_on ? "on" : "off");
        document.getElementById("heater").className = s.heater_on ? "on" : "off";
        set("locked", s.locked ? "yes" : "no");
        document.getElementById("locked").className = s.locked ? "locked" : "";
        set("last-event", s.last_event ? s.last_event.type + " at " + clock(s.last_event.timestamp) : "-");
        set("sessions", s.counts.sessions);
        set("alarms", s.counts.alarms);
        set("clicks", s.counts.clicks);
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
