package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	analysis "terralens/internal/analysis/domain"
	"terralens/internal/observability/metrics"
)

const reportPrompt = `You are an assistant that writes sustainability reports for mining sites.

You receive environmental data and site metrics for one mining site. Write a
comprehensive sustainability report in the requested format ({{.ReportFormat}}).

Mining Site ID: {{.MiningSiteID}}
Report Format: {{.ReportFormat}}

Environmental Data: {{.EnvironmentalData}}
Site Metrics: {{.SiteMetrics}}

The report must summarise the environmental impact, list the key sustainability
metrics and give actionable recommendations for improvement.

Where data is missing, make reasonable assumptions and state them clearly in the
report.{{if eq .ReportFormat "CSV"}} The report is CSV, so start it with a header row.{{end}}
`

const satellitePrompt = `You are an expert in analysing satellite images for environmental anomalies at mining sites.

Analyse the attached satellite image of the mining site and decide whether an
anomaly is present. Anomalies include unusual changes in vegetation, water bodies
or land use patterns.

State whether an anomaly was detected. If one was, describe it in detail and
include coordinates when they can be inferred.

{{if .SiteDescription}}Site Description: {{.SiteDescription}}

{{end}}Assess at least:
1. Vegetation health: signs of stress or deforestation.
2. Water bodies: pollution or depletion.
3. Land use: unauthorised use or expansion of mining activity.
4. Erosion: areas where erosion may be occurring, for example after clearing.
`

func builtinPrompts() map[string]string {
	return map[string]string{
		analysis.FlowSustainabilityReport: reportPrompt,
		analysis.FlowSatelliteAnalysis:    satellitePrompt,
	}
}

type promptFile struct {
	Prompts map[string]string `yaml:"prompts"`
}

// PromptLibrary holds the prompt template of every flow. Templates can be
// overridden from a YAML file; a template that fails to parse is rejected and
// the previous version stays active.
type PromptLibrary struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	logger    *zap.Logger
}

// NewPromptLibrary constructs a library holding the built-in prompts.
func NewPromptLibrary(logger *zap.Logger) *PromptLibrary {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PromptLibrary{
		templates: make(map[string]*template.Template),
		logger:    logger.Named("prompts"),
	}
	for flow, text := range builtinPrompts() {
		p.templates[flow] = template.Must(parsePrompt(flow, text))
	}
	return p
}

func parsePrompt(flow, text string) (*template.Template, error) {
	return template.New(flow).Option("missingkey=error").Parse(text)
}

// Render executes the prompt of flow with data.
func (p *PromptLibrary) Render(flow string, data any) (string, error) {
	p.mu.RLock()
	tpl, ok := p.templates[flow]
	p.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("prompts: unknown flow %q", flow)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompts: render %s: %w", flow, err)
	}
	return buf.String(), nil
}

// Load applies overrides from a YAML file. Unknown flows and templates that fail
// to parse are skipped; the returned error joins every rejection.
func (p *PromptLibrary) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("prompts: read %s: %w", path, err)
	}
	var file promptFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("prompts: parse %s: %w", path, err)
	}

	flows := make([]string, 0, len(file.Prompts))
	for flow := range file.Prompts {
		flows = append(flows, flow)
	}
	sort.Strings(flows)

	known := builtinPrompts()
	var errs []error
	parsed := make(map[string]*template.Template, len(flows))
	for _, flow := range flows {
		if _, ok := known[flow]; !ok {
			errs = append(errs, fmt.Errorf("prompts: unknown flow %q", flow))
			continue
		}
		tpl, err := parsePrompt(flow, file.Prompts[flow])
		if err != nil {
			errs = append(errs, fmt.Errorf("prompts: %s: %w", flow, err))
			continue
		}
		parsed[flow] = tpl
	}

	p.mu.Lock()
	for flow, tpl := range parsed {
		p.templates[flow] = tpl
	}
	p.mu.Unlock()

	if len(parsed) > 0 {
		p.logger.Info("prompt overrides loaded", zap.String("path", path), zap.Int("count", len(parsed)))
	}
	return errors.Join(errs...)
}

// Watch reloads path whenever it changes until ctx is done. The returned
// channel closes when the watcher has stopped.
func (p *PromptLibrary) Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory so editors that replace the file are still seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	target := filepath.Clean(path)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer watcher.Close()

		const settle = 200 * time.Millisecond
		timer := time.NewTimer(settle)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				timer.Reset(settle)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn("prompt watcher error", zap.Error(err))
			case <-timer.C:
				if err := p.Load(path); err != nil {
					metrics.IncPromptReload(metrics.ResultError)
					p.logger.Warn("prompt reload rejected", zap.String("path", path), zap.Error(err))
					continue
				}
				metrics.IncPromptReload(metrics.ResultSuccess)
			}
		}
	}()
	return done, nil
}
