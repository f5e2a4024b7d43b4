package server

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/routeplay/internal/timeline"
)

type errorResp struct {
	Error string `json:"error"`
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// isSafeAbsPath ensures the provided path is absolute and already clean,
// so request input cannot walk the filesystem with ".." segments.
func isSafeAbsPath(p string) bool {
	if p == "" {
		return true
	}
	if !filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	sep := string(filepath.Separator)
	trimmed := strings.TrimRight(p, sep)
	if trimmed == "" {
		trimmed = p
	}
	return clean == p || clean == trimmed
}

// parseSeekTarget accepts a Go duration ("1.5s", "750ms") or a bare number
// of milliseconds ("750").
func parseSeekTarget(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("t query param required")
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			return 0, fmt.Errorf("invalid seek target %q", s)
		}
		return timeline.FromMillis(ms), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid seek target %q", s)
	}
	return d, nil
}

func parseSpeed(s string) (float64, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("invalid speed %q", s)
	}
	return x, nil
}

// parseKinds accepts repeated or comma separated kind values.
func parseKinds(vals []string) (map[timeline.Kind]bool, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	out := make(map[timeline.Kind]bool)
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			k := timeline.Kind(part)
			if !k.Valid() {
				return nil, fmt.Errorf("unknown event kind %q", part)
			}
			out[k] = true
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
