// Package collector builds an AIBOM from an OTLP JSON trace export. Span
// attributes following the GenAI semantic conventions name the models, tools
// and endpoints an app used; the instrumentation scope names its framework.
package collector

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/airblackbox/runtime-aibom-emitter/internal/bom"
)

// Config lists the span attribute keys checked, in priority order, for each
// kind of component.
type Config struct {
	ModelAttrs    []string `json:"modelAttrs"`
	ProviderAttrs []string `json:"providerAttrs"`
	ToolAttrs     []string `json:"toolAttrs"`
	EndpointAttrs []string `json:"endpointAttrs"`
	ToolVersion   string   `json:"-"`
}

// DefaultConfig targets the GenAI semantic conventions plus common vendor keys.
func DefaultConfig() Config {
	return Config{
		ModelAttrs:    []string{"gen_ai.request.model", "llm.model_name", "ai.model.id"},
		ProviderAttrs: []string{"gen_ai.system", "llm.provider", "ai.provider"},
		ToolAttrs:     []string{"tool.name", "mcp.tool.name", "gen_ai.tool.name"},
		EndpointAttrs: []string{"server.address", "url.full", "http.url"},
	}
}

type otlpExport struct {
	ResourceSpans []struct {
		ScopeSpans []struct {
			Scope *struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"scope"`
			Spans []span `json:"spans"`
		} `json:"scopeSpans"`
	} `json:"resourceSpans"`
}

type span struct {
	TraceID    string      `json:"traceId"`
	Name       string      `json:"name"`
	StartNano  string      `json:"startTimeUnixNano"`
	Attributes []attribute `json:"attributes"`
}

type attribute struct {
	Key   string `json:"key"`
	Value struct {
		StringValue *string `json:"stringValue"`
	} `json:"value"`
}

// lookup returns the first string attribute among keys.
func lookup(attrs []attribute, keys []string) string {
	for _, k := range keys {
		for _, a := range attrs {
			if a.Key == k && a.Value.StringValue != nil {
				return *a.Value.StringValue
			}
		}
	}
	return ""
}

// CollectFromFile reads an OTLP JSON export and builds the AIBOM for app.
func CollectFromFile(path, app string, cfg Config) (*bom.AIBOM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace file: %w", err)
	}
	return CollectFromJSON(data, app, cfg)
}

// CollectFromJSON builds the AIBOM for app from an OTLP JSON export.
func CollectFromJSON(data []byte, app string, cfg Config) (*bom.AIBOM, error) {
	var export otlpExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("parse otlp: %w", err)
	}

	b := bom.NewBuilder(app, cfg.ToolVersion, bom.SourceTraces)
	for _, rs := range export.ResourceSpans {
		for _, ss := range rs.ScopeSpans {
			if ss.Scope != nil && ss.Scope.Name != "" {
				b.Declare("framework", ss.Scope.Name, ss.Scope.Version)
			}
			for _, sp := range ss.Spans {
				ts := parseNanos(sp.StartNano)
				b.AddSpan(sp.TraceID, ts)

				provider := lookup(sp.Attributes, cfg.ProviderAttrs)
				if model := lookup(sp.Attributes, cfg.ModelAttrs); model != "" {
					b.Observe("model", model, "", provider, ts)
				}
				if tool := lookup(sp.Attributes, cfg.ToolAttrs); tool != "" {
					b.Observe("tool", tool, "", "", ts)
				}
				if endpoint := lookup(sp.Attributes, cfg.EndpointAttrs); endpoint != "" {
					b.AddService(hostOf(endpoint), endpoint, provider)
				}
			}
		}
	}
	return b.Build(), nil
}

// hostOf reduces a URL or host:port/path to its host part.
func hostOf(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
			return u.Host
		}
	}
	host, _, _ := strings.Cut(endpoint, "/")
	return host
}

func parseNanos(s string) time.Time {
	ns, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || ns <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
