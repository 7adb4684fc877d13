package dashboard

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/tkingovr/spawnguard/api"
)

var funcMap = template.FuncMap{
	"upper":   strings.ToUpper,
	"join":    strings.Join,
	"outcome": outcome,
	"badge":   badgeClass,
	"list":    eventNames,
}

var pageTmpls = map[string]*template.Template{
	"overview": template.Must(template.New("overview").Funcs(funcMap).Parse(navHTML + overviewHTML)),
	"audit":    template.Must(template.New("audit").Funcs(funcMap).Parse(navHTML + auditHTML)),
	"policy":   template.Must(template.New("policy").Funcs(funcMap).Parse(navHTML + policyHTML)),
}

// outcome describes how an exited child ended.
func outcome(r *api.AuditRecord) string {
	switch {
	case r.Signal != "":
		return r.Signal
	case r.ExitCode != nil:
		return strconv.Itoa(*r.ExitCode)
	default:
		return ""
	}
}

func eventNames() []string {
	return []string{
		string(api.EventLaunch),
		string(api.EventDeny),
		string(api.EventExit),
		string(api.EventError),
	}
}

func badgeClass(e api.Event) string {
	switch e {
	case api.EventLaunch:
		return "bg-green-900 text-green-300"
	case api.EventDeny:
		return "bg-red-900 text-red-300"
	case api.EventError:
		return "bg-yellow-900 text-yellow-300"
	default:
		return "bg-blue-900 text-blue-300"
	}
}

func renderPage(w http.ResponseWriter, name string, data map[string]any) {
	tmpl, ok := pageTmpls[name]
	if !ok {
		http.Error(w, "unknown page: "+name, http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

const navHTML = `{{define "nav"}}
<nav class="bg-gray-900 border-b border-gray-700 px-6 py-4">
    <div class="flex items-center justify-between max-w-7xl mx-auto">
        <div class="flex items-center space-x-2">
            <span class="text-xl font-bold text-white">spawnguard</span>
            <span class="text-xs bg-gray-700 text-gray-300 px-2 py-1 rounded">Dashboard</span>
        </div>
        <div class="flex space-x-4">
            <a href="/" class="px-3 py-2 rounded hover:bg-gray-800 {{if eq .Page "overview"}}bg-gray-800 text-white{{else}}text-gray-400{{end}}">Overview</a>
            <a href="/audit" class="px-3 py-2 rounded hover:bg-gray-800 {{if eq .Page "audit"}}bg-gray-800 text-white{{else}}text-gray-400{{end}}">Audit Log</a>
            <a href="/policy" class="px-3 py-2 rounded hover:bg-gray-800 {{if eq .Page "policy"}}bg-gray-800 text-white{{else}}text-gray-400{{end}}">Policy</a>
        </div>
    </div>
</nav>
{{end}}`

const headHTML = `<!DOCTYPE html>
<html lang="en" class="dark">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>spawnguard Dashboard</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <style>body { background-color: #0f172a; color: #e2e8f0; }</style>
</head>
<body class="min-h-screen">
{{template "nav" .}}
<main class="max-w-7xl mx-auto px-6 py-8">`

const footHTML = `</main>
</body>
</html>`

const overviewHTML = headHTML + `
<h1 class="text-2xl font-bold mb-6">Overview</h1>
<div class="grid grid-cols-1 md:grid-cols-4 gap-6 mb-8">
    <div class="bg-gray-900 border border-green-900 rounded-lg p-6">
        <div class="text-green-400 text-sm mb-1">Launches</div>
        <div class="text-3xl font-bold text-green-300">{{.Stats.Launches}}</div>
    </div>
    <div class="bg-gray-900 border border-red-900 rounded-lg p-6">
        <div class="text-red-400 text-sm mb-1">Denied</div>
        <div class="text-3xl font-bold text-red-300">{{.Stats.Denials}}</div>
    </div>
    <div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
        <div class="text-gray-400 text-sm mb-1">Exits (non-zero)</div>
        <div class="text-3xl font-bold text-white">{{.Stats.Exits}} <span class="text-lg text-gray-400">({{.Stats.NonZeroExits}})</span></div>
    </div>
    <div class="bg-gray-900 border border-yellow-900 rounded-lg p-6">
        <div class="text-yellow-400 text-sm mb-1">Launch Errors</div>
        <div class="text-3xl font-bold text-yellow-300">{{.Stats.Errors}}</div>
    </div>
</div>
<div class="grid grid-cols-1 md:grid-cols-2 gap-6">
    <div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
        <h2 class="text-lg font-bold mb-4">Launches by Command</h2>
        {{range $command, $count := .Stats.ByCommand}}
        <div class="flex justify-between py-1 border-b border-gray-800">
            <span class="text-gray-300 font-mono text-sm">{{$command}}</span>
            <span class="text-gray-400">{{$count}}</span>
        </div>
        {{else}}<p class="text-gray-500">No data yet</p>{{end}}
    </div>
    <div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
        <h2 class="text-lg font-bold mb-4">By Rule</h2>
        {{range $rule, $count := .Stats.ByRule}}
        <div class="flex justify-between py-1 border-b border-gray-800">
            <span class="text-gray-300 font-mono text-sm">{{$rule}}</span>
            <span class="text-gray-400">{{$count}}</span>
        </div>
        {{else}}<p class="text-gray-500">No data yet</p>{{end}}
    </div>
</div>
` + footHTML

const auditHTML = headHTML + `
<div class="flex justify-between items-center mb-6">
    <h1 class="text-2xl font-bold">Audit Log</h1>
    <form method="get" action="/audit" class="flex space-x-2 text-sm">
        <input name="command" value="{{.Filter.Command}}" placeholder="command" class="bg-gray-800 rounded px-2 py-1">
        <select name="event" class="bg-gray-800 rounded px-2 py-1">
            <option value="">all events</option>
            {{range $e := list}}<option value="{{$e}}"{{if eq (printf "%s" $.Filter.Event) $e}} selected{{end}}>{{$e}}</option>{{end}}
        </select>
        <button class="px-3 py-1 rounded bg-gray-700">Filter</button>
    </form>
</div>
<div class="bg-gray-900 border border-gray-700 rounded-lg overflow-hidden">
    <table class="w-full text-sm text-left">
        <thead class="bg-gray-800 text-gray-400 uppercase text-xs">
            <tr>
                <th class="px-4 py-3">Time</th>
                <th class="px-4 py-3">Event</th>
                <th class="px-4 py-3">Command</th>
                <th class="px-4 py-3">Arguments</th>
                <th class="px-4 py-3">PID</th>
                <th class="px-4 py-3">Exit</th>
                <th class="px-4 py-3">Rule</th>
            </tr>
        </thead>
        <tbody>
            {{range .Records}}
            <tr class="border-b border-gray-700 hover:bg-gray-800">
                <td class="px-4 py-2 text-gray-400 text-xs">{{.Timestamp.Format "2006-01-02 15:04:05"}}</td>
                <td class="px-4 py-2"><span class="px-2 py-1 rounded text-xs font-bold {{badge .Event}}">{{upper (printf "%s" .Event)}}</span></td>
                <td class="px-4 py-2 font-mono">{{.Command}}</td>
                <td class="px-4 py-2 font-mono text-xs max-w-xs truncate">{{join .Args " "}}</td>
                <td class="px-4 py-2 text-gray-400">{{if .PID}}{{.PID}}{{end}}</td>
                <td class="px-4 py-2 text-gray-400">{{outcome .}}</td>
                <td class="px-4 py-2 text-gray-400 text-xs" title="{{.Message}}">{{.Rule}}</td>
            </tr>
            {{else}}
            <tr><td colspan="7" class="px-4 py-8 text-center text-gray-500">No records</td></tr>
            {{end}}
        </tbody>
    </table>
</div>
` + footHTML

const policyHTML = headHTML + `
<h1 class="text-2xl font-bold mb-6">Active Policy</h1>
<div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
    <pre class="font-mono text-sm text-gray-300 whitespace-pre-wrap">{{.PolicyYAML}}</pre>
</div>
{{if .Rego}}
<h2 class="text-lg font-bold mt-8 mb-4">Rego ({{.Policy.Settings.OPAPolicy}})</h2>
<div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
    <pre class="font-mono text-sm text-gray-300 whitespace-pre-wrap">{{.Rego}}</pre>
</div>
{{end}}
` + footHTML
