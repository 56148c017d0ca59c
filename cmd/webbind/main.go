package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/config"
	"github.com/wippyai/webbind/eventbus"
	"github.com/wippyai/webbind/healthcheck"
	"github.com/wippyai/webbind/jsbind"
	"github.com/wippyai/webbind/observability"
	"github.com/wippyai/webbind/proxy"
	"github.com/wippyai/webbind/serviceproxy"
	"github.com/wippyai/webbind/wasmhost"
	"github.com/wippyai/webbind/web"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to webbind.yaml")
		scriptFile  = flag.String("script", "", "JavaScript file to run")
		serveAddr   = flag.String("serve", "", "Serve the router returned by the script on this address")
		wasmFile    = flag.String("wasm", "", "WebAssembly guest importing webbind.invoke")
		wasmFunc    = flag.String("func", "run", "Guest export to call with -wasm")
		query       = flag.String("query", "", "gjson path applied to the result")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		dumpConfig  = flag.Bool("dump-config", false, "Print the effective configuration as YAML and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *scriptFile != "" {
		cfg.Script.Path = *scriptFile
	}
	if *serveAddr != "" {
		cfg.Script.ServeAddr = *serveAddr
	}

	if *dumpConfig {
		out, err := config.Dump(cfg)
		if err != nil {
			fatal(err)
		}
		os.Stdout.Write(out)
		return
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	reg, err := newRegistry()
	if err != nil {
		fatal(err)
	}
	defer reg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *interactive:
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fatal(fmt.Errorf("interactive mode needs a terminal on stdin"))
		}
		err = runInteractive(reg)
	case *wasmFile != "":
		err = runWasm(ctx, cfg, reg, *wasmFile, *wasmFunc, *query)
	case cfg.Script.Path != "":
		err = runScript(ctx, cfg, reg, *query)
	default:
		fmt.Fprintln(os.Stderr, "Usage: webbind -script <file.js> [-serve addr] [-query path]")
		fmt.Fprintln(os.Stderr, "       webbind -wasm <guest.wasm> [-func name]")
		fmt.Fprintln(os.Stderr, "       webbind -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "       webbind -dump-config")
		os.Exit(1)
	}
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func newRegistry() (*proxy.Registry, error) {
	reg := proxy.NewRegistry()
	for _, register := range []func(*proxy.Registry) error{
		web.Register,
		healthcheck.Register,
		eventbus.Register,
		serviceproxy.Register,
	} {
		if err := register(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// predefined builds the delegates scripts get as globals, configured from
// cfg.
func predefined(cfg *config.Config) map[string]any {
	bus := eventbus.New(
		eventbus.WithTimeout(time.Duration(cfg.EventBus.TimeoutMs)*time.Millisecond),
		eventbus.WithContentType(cfg.EventBus.ContentType),
	)
	static := web.NewStaticHandlerAt(cfg.Static.WebRoot).
		SetMaxAgeSeconds(cfg.Static.MaxAgeSeconds).
		SetMaxCacheSize(cfg.Static.MaxCacheSize).
		SetDirectoryListing(cfg.Static.DirectoryListing).
		SetIncludeHidden(cfg.Static.IncludeHidden)
	return map[string]any{
		"bus":           bus,
		"health":        healthcheck.New(time.Duration(cfg.Health.TimeoutMs) * time.Millisecond),
		"staticHandler": static,
	}
}

func runScript(ctx context.Context, cfg *config.Config, reg *proxy.Registry, query string) error {
	src, err := os.ReadFile(cfg.Script.Path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	rt, err := jsbind.New(reg)
	if err != nil {
		return err
	}
	defer rt.Close()

	for name, delegate := range predefined(cfg) {
		p, err := reg.Bind(delegate)
		if err != nil {
			return err
		}
		if err := rt.Set(name, p); err != nil {
			return err
		}
	}

	runCtx := ctx
	if cfg.Script.TimeoutMs > 0 && cfg.Script.ServeAddr == "" {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Script.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	result, err := rt.RunString(runCtx, cfg.Script.Path, string(src))
	if err != nil {
		return err
	}

	if cfg.Script.ServeAddr != "" {
		return serve(ctx, rt, result, cfg.Script.ServeAddr)
	}
	return printResult(result, query)
}

func serve(ctx context.Context, rt *jsbind.Runtime, result any, addr string) error {
	p, ok := result.(*proxy.Proxy)
	if !ok {
		return fmt.Errorf("script must evaluate to a Router to serve, got %T", result)
	}
	router, ok := p.Delegate().(*web.Router)
	if !ok {
		return fmt.Errorf("script must evaluate to a Router to serve, got %s", p.Class().Name)
	}

	release := rt.Loop().Hold()
	defer release()

	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		zap.L().Info("serving", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := rt.Serve(ctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runWasm(ctx context.Context, cfg *config.Config, reg *proxy.Registry, file, fn, query string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	rt := wasmhost.NewRuntime(ctx, wasmhost.Config{MemoryLimitPages: cfg.Wasm.MemoryLimitPages})
	defer rt.Close(ctx)

	host := wasmhost.New(reg, wasmhost.WithTimeout(time.Duration(cfg.Wasm.TimeoutMs)*time.Millisecond))
	defer host.Close()
	if _, err := host.Instantiate(ctx, rt); err != nil {
		return err
	}
	mod, err := wasmhost.Load(ctx, rt, file, data)
	if err != nil {
		return err
	}
	f := mod.ExportedFunction(fn)
	if f == nil {
		return fmt.Errorf("guest does not export %q", fn)
	}
	res, err := f.Call(ctx)
	if err != nil {
		return fmt.Errorf("call %s: %w", fn, err)
	}
	out := make([]any, len(res))
	for i, v := range res {
		out[i] = v
	}
	return printResult(out, query)
}

func printResult(result any, query string) error {
	raw, err := json.Marshal(display(result))
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if query != "" {
		r := gjson.GetBytes(raw, query)
		if !r.Exists() {
			return fmt.Errorf("query %q matched nothing", query)
		}
		raw = []byte(r.Raw)
	}
	fmt.Println(string(raw))
	return nil
}

// display makes a host value printable as JSON.
func display(v any) any {
	switch x := v.(type) {
	case *proxy.Proxy:
		return x.String()
	case proxy.HostFunc:
		return "function"
	case async.Awaitable:
		return "future"
	case error:
		return x.Error()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = display(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = display(e)
		}
		return out
	}
	return v
}
