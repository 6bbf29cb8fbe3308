// Package payload resolves one event payload per generator iteration.
//
// A payload source is one of:
//   - empty: a fixed-shape default event
//   - inline JSON object
//   - path to a .json file
//   - path to a .tmpl Go template, rendered then JSON-parsed
//   - s3://bucket/key pointing at a .json or .tmpl object
package payload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
)

// ErrorKind classifies source failures.
type ErrorKind int

const (
	// KindNotFound means the source could not be resolved at all.
	KindNotFound ErrorKind = iota
	// KindBadFormat means the source resolved but its format is unusable.
	KindBadFormat
)

// SourceError reports an unresolvable or unparsable payload source. It is
// fatal to the generation call that hit it and is never retried.
type SourceError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("payload source not found: %s: %v", e.Source, e.Err)
	default:
		return fmt.Sprintf("unsupported payload source %s: %v", e.Source, e.Err)
	}
}

func (e *SourceError) Unwrap() error { return e.Err }

// Fetcher retrieves remote payload sources. Satisfied by objectstore.Client.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// Provider turns a source descriptor into event payloads. Safe for
// concurrent use; every call returns a freshly built payload.
type Provider struct {
	source  string
	fetcher Fetcher

	tmplOnce sync.Once
	tmpl     *template.Template
	tmplErr  error
}

type Params struct {
	// Source descriptor; empty selects the default payload.
	Source string
	// Fetcher is required only for s3:// sources.
	Fetcher Fetcher
}

// NewProvider builds a provider for the given source descriptor.
func NewProvider(p Params) *Provider {
	return &Provider{source: p.Source, fetcher: p.Fetcher}
}

var defaultPaths = []string{
	"/", "/home", "/search", "/products", "/products/42",
	"/cart", "/checkout", "/account", "/docs", "/api/status",
}

// Payload resolves one event payload.
func (p *Provider) Payload(ctx context.Context) (map[string]any, error) {
	if p.source == "" {
		return map[string]any{
			"event_type": "page_view",
			"user_id":    uuid.NewString(),
			"path":       defaultPaths[rand.IntN(len(defaultPaths))],
			"ts":         time.Now().UnixMilli(),
		}, nil
	}

	// Inline JSON object wins over path interpretation.
	if strings.HasPrefix(strings.TrimSpace(p.source), "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(p.source), &obj); err == nil {
			return obj, nil
		}
	}

	data, err := p.read(ctx)
	if err != nil {
		return nil, err
	}

	switch path.Ext(p.source) {
	case ".json":
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, &SourceError{Source: p.source, Kind: KindBadFormat, Err: err}
		}
		return obj, nil
	case ".tmpl":
		return p.render(data)
	default:
		return nil, &SourceError{
			Source: p.source,
			Kind:   KindBadFormat,
			Err:    errors.New("use a .json or .tmpl file"),
		}
	}
}

func (p *Provider) read(ctx context.Context) ([]byte, error) {
	if rest, isRemote := strings.CutPrefix(p.source, "s3://"); isRemote {
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || p.fetcher == nil {
			return nil, &SourceError{
				Source: p.source,
				Kind:   KindBadFormat,
				Err:    errors.New("s3 sources need a bucket/key path and a configured object store"),
			}
		}
		data, err := p.fetcher.Fetch(ctx, bucket, key)
		if err != nil {
			return nil, &SourceError{Source: p.source, Kind: KindNotFound, Err: err}
		}
		return data, nil
	}

	data, err := os.ReadFile(p.source)
	if err != nil {
		return nil, &SourceError{Source: p.source, Kind: KindNotFound, Err: err}
	}
	return data, nil
}

// render executes the template with the helper funcmap and parses the result
// as a JSON object. The template is parsed once and reused; execution is
// safe from concurrent workers.
func (p *Provider) render(data []byte) (map[string]any, error) {
	p.tmplOnce.Do(func() {
		p.tmpl, p.tmplErr = template.New(path.Base(p.source)).Funcs(helpers()).Parse(string(data))
	})
	if p.tmplErr != nil {
		return nil, &SourceError{Source: p.source, Kind: KindBadFormat, Err: p.tmplErr}
	}

	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, nil); err != nil {
		return nil, &SourceError{Source: p.source, Kind: KindBadFormat, Err: err}
	}

	var obj map[string]any
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		return nil, &SourceError{Source: p.source, Kind: KindBadFormat, Err: err}
	}
	return obj, nil
}

func helpers() template.FuncMap {
	return template.FuncMap{
		"uuid":   uuid.NewString,
		"now_ms": func() int64 { return time.Now().UnixMilli() },
		"randint": func(lo, hi int) int {
			if hi <= lo {
				return lo
			}
			return lo + rand.IntN(hi-lo+1)
		},
		"uniform": func(lo, hi float64) float64 {
			return lo + rand.Float64()*(hi-lo)
		},
		"choice": func(items ...string) string {
			if len(items) == 0 {
				return ""
			}
			return items[rand.IntN(len(items))]
		},
	}
}
