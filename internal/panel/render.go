package panel

import (
	"html/template"
	"io"
)

// LastUpdatedLayout formats the last-updated text.
const LastUpdatedLayout = "2006-01-02 15:04:05 MST"

var pageTemplate = template.Must(template.New("panel").Parse(panelHTMLTemplate))

type pageData struct {
	Cards       []Card
	Error       string
	LastUpdated string
}

// Render writes the panel page for view.
func Render(w io.Writer, view View) error {
	return pageTemplate.Execute(w, pageData{
		Cards:       view.Cards,
		Error:       view.Error,
		LastUpdated: FormatLastUpdated(view),
	})
}

// FormatLastUpdated returns the last-updated text, or "Never" before the first success.
func FormatLastUpdated(view View) string {
	if view.LastUpdated.IsZero() {
		return "Never"
	}
	return view.LastUpdated.Format(LastUpdatedLayout)
}

const panelHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Solar Power Monitor</title>
  <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-900 text-white min-h-screen">
  <div class="container mx-auto px-4 py-8">
    <header class="flex justify-between items-center mb-8">
      <h1 class="text-3xl font-bold">Solar Power Monitor</h1>
      <form method="post" action="/refresh">
        <button id="refreshButton" type="submit" class="bg-blue-600 hover:bg-blue-700 px-4 py-2 rounded">Refresh</button>
      </form>
    </header>
    <p class="text-gray-400 mb-4">Last updated: <span id="lastUpdated">{{.LastUpdated}}</span></p>
    <div id="locationGrid" class="grid grid-cols-1 md:grid-cols-2 lg:grid-cols-3 gap-6">
{{- if .Error}}
      <div data-role="error" class="col-span-full text-center text-red-500">{{.Error}}</div>
{{- else}}
{{- range .Cards}}
      <div data-role="card" class="bg-gray-800 rounded-lg shadow-lg p-6">
        <h2 class="text-xl font-bold mb-4">{{.Name}}</h2>
        <div class="flex items-center justify-center mb-4">
          <div class="w-4 h-4 rounded-full {{.CSSClass}} mr-2" data-class="{{.Class}}"></div>
          <span class="capitalize">{{.Status}}</span>
        </div>
        <div class="space-y-2">
          <p>Cloud Cover: {{.CloudCover}}</p>
          <p>Power Output: {{.PowerOutput}}</p>
        </div>
      </div>
{{- end}}
{{- end}}
    </div>
  </div>
</body>
</html>
`
