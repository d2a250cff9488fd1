package handlers

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.json
var openAPIDocument []byte

// docsPage renders openapi.json with Redoc. The noscript block lists the
// endpoints for clients that do not run the bundle.
const docsPage = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>Story Images API</title>
    <meta name="description" content="Generates story page illustrations with Imagen and falls back to themed gradients when the model is unavailable." />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>
      body { margin: 0; padding: 0; }
      redoc { display: block; height: 100vh; }
    </style>
  </head>
  <body>
    <noscript>
      <h1>Story Images API</h1>
      <p>Generates story page illustrations with Imagen and falls back to themed gradients when the model is unavailable.</p>
      <ul>
        <li>POST /v1/images/generate</li>
        <li>POST /v1/images/jobs</li>
        <li>GET /v1/images/jobs?jobId= or ?jobBatchId=</li>
        <li>DELETE /v1/images/jobs/{jobID}</li>
        <li>GET /v1/images/jobs/{jobID}/archive</li>
      </ul>
      <p>Machine-readable description: <a href="/v1/openapi.json">/v1/openapi.json</a></p>
    </noscript>
    <redoc spec-url="/v1/openapi.json"></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`

func (a *App) OpenAPIJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(docsPage))
}
