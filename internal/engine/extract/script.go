package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/cartelera/internal/engine/dom"
)

const (
	maxScriptBytes = 512 * 1024
	scriptTimeout  = 100 * time.Millisecond
	maxSearchDepth = 8
)

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func keyPattern(key string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[key]; ok {
		return re
	}
	re := regexp.MustCompile(`(?:^|[^\w$])["']?` + regexp.QuoteMeta(key) + `["']?\s*:\s*["']([^"']+)["']`)
	patternCache[key] = re
	return re
}

// ScanScripts looks for the first of keys inside the page's inline scripts.
// A literal "key": "value" pattern is tried first; scripts that mention a key
// but do not match are evaluated in a sandbox and their globals searched.
func ScanScripts(ctx context.Context, doc dom.Document, keys []string) (string, bool) {
	var scripts []string
	for _, el := range doc.QueryAll(ctx, "script") {
		if _, external := el.Attr("src"); external {
			continue
		}
		if body := el.Text(); strings.TrimSpace(body) != "" {
			scripts = append(scripts, body)
		}
	}
	if len(scripts) == 0 {
		return "", false
	}

	for _, key := range keys {
		for _, body := range scripts {
			if m := keyPattern(key).FindStringSubmatch(body); m != nil {
				return m[1], true
			}
		}
	}

	var candidates []string
	for _, body := range scripts {
		if len(body) > maxScriptBytes {
			continue
		}
		for _, key := range keys {
			if strings.Contains(body, key) {
				candidates = append(candidates, body)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return evalScripts(doc.URL(), candidates, keys)
}

// evalScripts runs scripts in a goja runtime with a minimal browser shim and
// searches the resulting globals for keys.
func evalScripts(pageURL string, scripts []string, keys []string) (string, bool) {
	vm := goja.New()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	vm.Set("window", vm.GlobalObject())
	vm.Set("self", vm.GlobalObject())
	vm.Set("location", map[string]interface{}{"href": pageURL})
	vm.Set("document", map[string]interface{}{
		"location":         map[string]interface{}{"href": pageURL},
		"addEventListener": noop,
	})
	vm.Set("console", map[string]interface{}{"log": noop, "warn": noop, "error": noop})

	for _, body := range scripts {
		timer := time.AfterFunc(scriptTimeout, func() { vm.Interrupt("script timeout") })
		if _, err := vm.RunString(body); err != nil {
			log.Debug().Err(err).Msg("Inline script evaluation stopped")
		}
		timer.Stop()
		vm.ClearInterrupt()
	}

	global := vm.GlobalObject()
	for _, key := range keys {
		for _, name := range global.Keys() {
			if shimGlobals[name] {
				continue
			}
			if name == key {
				if s, ok := scalar(global.Get(name).Export()); ok {
					return s, true
				}
			}
			if s, ok := findKey(global.Get(name).Export(), key, 0); ok {
				return s, true
			}
		}
	}
	return "", false
}

var shimGlobals = map[string]bool{
	"window": true, "self": true, "location": true, "document": true, "console": true,
}

func findKey(v interface{}, key string, depth int) (string, bool) {
	if depth > maxSearchDepth {
		return "", false
	}
	switch t := v.(type) {
	case map[string]interface{}:
		if raw, ok := t[key]; ok {
			if s, ok := scalar(raw); ok {
				return s, true
			}
		}
		for _, child := range t {
			if s, ok := findKey(child, key, depth+1); ok {
				return s, true
			}
		}
	case []interface{}:
		for _, child := range t {
			if s, ok := findKey(child, key, depth+1); ok {
				return s, true
			}
		}
	}
	return "", false
}

func scalar(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", false
		}
		return t, true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}
