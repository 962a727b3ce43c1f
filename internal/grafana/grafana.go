// Package grafana renders Grafana dashboards for the recorded rover tables.
package grafana

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"roverscope/internal/telemetry"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Data fills the dashboard templates.
type Data struct {
	Title       string
	PoseTable   string
	HazardTable string
}

// DefaultData uses the configured table names.
func DefaultData() Data {
	return Data{
		Title:       "Roverscope",
		PoseTable:   telemetry.PoseTableName,
		HazardTable: telemetry.HazardTableName,
	}
}

var funcMap = template.FuncMap{
	"env": func(key string) (string, error) {
		v := os.Getenv(key)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", key)
		}
		return v, nil
	},
}

// Render executes every embedded template and writes the dashboards to
// outDir. It returns the written paths.
func Render(outDir string, data Data) ([]string, error) {
	t, err := template.New("grafana").Funcs(funcMap).ParseFS(templates, "templates/*.json.tmpl")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, tpl := range t.Templates() {
		if !strings.HasSuffix(tpl.Name(), ".tmpl") {
			continue
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(tpl.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return written, err
		}
		if err := tpl.Execute(f, data); err != nil {
			f.Close()
			return written, fmt.Errorf("render %s: %w", tpl.Name(), err)
		}
		if err := f.Close(); err != nil {
			return written, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
