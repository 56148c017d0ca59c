package web

import (
	"fmt"
	"html"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Static handler defaults.
const (
	DefaultWebRoot           = "webroot"
	DefaultFilesReadOnly     = true
	DefaultMaxAgeSeconds     = 86400
	DefaultCachingEnabled    = true
	DefaultDirectoryListing  = false
	DefaultIncludeHidden     = true
	DefaultCacheEntryTimeout = 30000 // milliseconds
	DefaultIndexPage         = "/index.html"
	DefaultMaxCacheSize      = 10000
)

type fileProps struct {
	modTime  time.Time
	cachedAt time.Time
	size     int64
	isDir    bool
}

// StaticHandler serves files below a web root. Its setters are fluent.
type StaticHandler struct {
	props             *lru[string, fileProps]
	webRoot           string
	indexPage         string
	maxAgeSeconds     int64
	cacheEntryTimeout int64
	maxCacheSize      int
	mu                sync.RWMutex
	filesReadOnly     bool
	cachingEnabled    bool
	directoryListing  bool
	includeHidden     bool
}

// NewStaticHandler creates a handler with default settings.
func NewStaticHandler() *StaticHandler {
	return &StaticHandler{
		props:             newLRU[string, fileProps](DefaultMaxCacheSize),
		webRoot:           DefaultWebRoot,
		indexPage:         DefaultIndexPage,
		maxAgeSeconds:     DefaultMaxAgeSeconds,
		cacheEntryTimeout: DefaultCacheEntryTimeout,
		maxCacheSize:      DefaultMaxCacheSize,
		filesReadOnly:     DefaultFilesReadOnly,
		cachingEnabled:    DefaultCachingEnabled,
		directoryListing:  DefaultDirectoryListing,
		includeHidden:     DefaultIncludeHidden,
	}
}

// NewStaticHandlerAt creates a handler serving root.
func NewStaticHandlerAt(root string) *StaticHandler {
	return NewStaticHandler().SetWebRoot(root)
}

func (h *StaticHandler) SetWebRoot(root string) *StaticHandler {
	h.mu.Lock()
	h.webRoot = root
	h.mu.Unlock()
	return h
}

func (h *StaticHandler) SetFilesReadOnly(readOnly bool) *StaticHandler {
	h.mu.Lock()
	h.filesReadOnly = readOnly
	h.mu.Unlock()
	return h
}

func (h *StaticHandler) SetMaxAgeSeconds(seconds int64) *StaticHandler {
	h.mu.Lock()
	h.maxAgeSeconds = seconds
	h.mu.Unlock()
	return h
}

func (h *StaticHandler) SetCachingEnabled(enabled bool) *StaticHandler {
	h.mu.Lock()
	h.cachingEnabled = enabled
	h.mu.Unlock()
	return h
}

func (h *StaticHandler) SetDirectoryListing(enabled bool) *StaticHandler {
	h.mu.Lock()
	h.directoryListing = enabled
	h.mu.Unlock()
	return h
}

func (h *StaticHandler) SetIncludeHidden(include bool) *StaticHandler {
	h.mu.Lock()
	h.includeHidden = include
	h.mu.Unlock()
	return h
}

// SetCacheEntryTimeout sets how long cached file properties stay valid, in
// milliseconds.
func (h *StaticHandler) SetCacheEntryTimeout(ms int64) *StaticHandler {
	h.mu.Lock()
	h.cacheEntryTimeout = ms
	h.mu.Unlock()
	return h
}

func (h *StaticHandler) SetIndexPage(page string) *StaticHandler {
	if !strings.HasPrefix(page, "/") {
		page = "/" + page
	}
	h.mu.Lock()
	h.indexPage = page
	h.mu.Unlock()
	return h
}

// SetMaxCacheSize bounds the number of cached file property entries.
func (h *StaticHandler) SetMaxCacheSize(size int32) *StaticHandler {
	h.mu.Lock()
	h.maxCacheSize = int(size)
	h.mu.Unlock()
	h.props.resize(int(size))
	return h
}

// MaxCacheSize returns the cache bound.
func (h *StaticHandler) MaxCacheSize() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.maxCacheSize
}

// CachedEntries returns the number of cached file property entries.
func (h *StaticHandler) CachedEntries() int {
	return h.props.len()
}

type staticSettings struct {
	webRoot          string
	indexPage        string
	maxAge           int64
	entryTimeout     time.Duration
	readOnly         bool
	caching          bool
	directoryListing bool
	includeHidden    bool
}

func (h *StaticHandler) settings() staticSettings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return staticSettings{
		webRoot:          h.webRoot,
		indexPage:        h.indexPage,
		maxAge:           h.maxAgeSeconds,
		entryTimeout:     time.Duration(h.cacheEntryTimeout) * time.Millisecond,
		readOnly:         h.filesReadOnly,
		caching:          h.cachingEnabled,
		directoryListing: h.directoryListing,
		includeHidden:    h.includeHidden,
	}
}

// Handle serves the file matching the context path. Only GET and HEAD are
// served; anything else, hidden files when excluded, and missing files are
// passed on with Next.
func (h *StaticHandler) Handle(ctx *RoutingContext) {
	method := ctx.req.Method
	if method != http.MethodGet && method != http.MethodHead {
		ctx.Next()
		return
	}
	s := h.settings()

	if strings.Contains(ctx.NormalisedPath(), "..") {
		ctx.Fail(http.StatusForbidden)
		return
	}
	rel := ctx.RemainingPath()
	if !s.includeHidden && isHidden(rel) {
		ctx.Next()
		return
	}

	full := filepath.Join(s.webRoot, filepath.FromSlash(rel))
	props, ok := h.stat(full, s)
	if !ok {
		ctx.Next()
		return
	}
	if props.isDir {
		if s.directoryListing {
			h.listDirectory(ctx, full, rel, s)
			return
		}
		full = filepath.Join(full, filepath.FromSlash(s.indexPage))
		if props, ok = h.stat(full, s); !ok || props.isDir {
			ctx.Next()
			return
		}
	}
	h.serveFile(ctx, full, props, s)
}

func (h *StaticHandler) stat(full string, s staticSettings) (fileProps, bool) {
	useCache := s.caching && s.readOnly
	if useCache {
		if p, ok := h.props.get(full); ok {
			if s.entryTimeout <= 0 || time.Since(p.cachedAt) < s.entryTimeout {
				return p, true
			}
			h.props.remove(full)
		}
	}
	fi, err := os.Stat(full)
	if err != nil {
		return fileProps{}, false
	}
	p := fileProps{modTime: fi.ModTime(), size: fi.Size(), isDir: fi.IsDir(), cachedAt: time.Now()}
	if useCache {
		h.props.put(full, p)
	}
	return p, true
}

func (h *StaticHandler) serveFile(ctx *RoutingContext, full string, props fileProps, s staticSettings) {
	f, err := os.Open(full)
	if err != nil {
		Logger().Warn("open static file", zap.String("path", full), zap.Error(err))
		ctx.Fail(http.StatusInternalServerError)
		return
	}
	defer f.Close()

	hdr := ctx.writer.Header()
	if s.caching {
		hdr.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", s.maxAge))
		hdr.Set("Last-Modified", props.modTime.UTC().Format(http.TimeFormat))
	} else {
		hdr.Set("Cache-Control", "no-cache")
	}
	ctx.response.written = true
	ctx.response.ended = true
	http.ServeContent(ctx.writer, ctx.req, filepath.Base(full), props.modTime, f)
}

func (h *StaticHandler) listDirectory(ctx *RoutingContext, full, rel string, s staticSettings) {
	entries, err := os.ReadDir(full)
	if err != nil {
		ctx.Fail(http.StatusInternalServerError)
		return
	}
	var names []string
	for _, e := range entries {
		if !s.includeHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	resp := ctx.Response()
	if strings.Contains(ctx.req.Header.Get("Accept"), "application/json") {
		var b strings.Builder
		b.WriteByte('[')
		for i, n := range names {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%q", n)
		}
		b.WriteByte(']')
		resp.PutHeader("Content-Type", "application/json").EndWith(b.String())
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><ul>", html.EscapeString(rel))
	for _, n := range names {
		href := path.Join(ctx.NormalisedPath(), n)
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, html.EscapeString(href), html.EscapeString(n))
	}
	b.WriteString("</ul></body></html>")
	resp.PutHeader("Content-Type", "text/html; charset=utf-8").EndWith(b.String())
}

func isHidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
