package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof" // register handlers
	"regexp"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zephyrtronium/banana/chatlog"
	"github.com/zephyrtronium/banana/game"
)

func (robo *Robot) api(ctx context.Context, listen string, mux *http.ServeMux, metrics []prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorMemStatsMetricsDisabled(),
		collectors.WithGoCollectorRuntimeMetrics(
			collectors.GoRuntimeMetricsRule{
				Matcher: regexp.MustCompile(`^(/gc/gogc:percent|/gc/gomemlimit:bytes|/gc/heap/allocs:bytes|/gc/heap/goal:bytes|/memory/classes/total:bytes|/sched/goroutines:goroutines|/sched/latencies:seconds)$`),
			},
		),
	))
	reg.MustRegister(metrics...)
	opts := promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, opts))
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	robo.routes(mux)
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("couldn't start API server: %w", err)
	}
	srv := http.Server{
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.InfoContext(ctx, "HTTP API server", slog.Any("addr", l.Addr()))
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return
		}
		slog.ErrorContext(ctx, "HTTP API server closed", slog.Any("err", err))
	}()
	<-ctx.Done()
	// The context is now done, so it is obviously the wrong choice for
	// managing the shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// routes adds the bot's own API routes to mux.
func (robo *Robot) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", robo.apiStatus)
	mux.HandleFunc("GET /api/chat", robo.apiChat)
}

func jsonerror(w http.ResponseWriter, status int, msg string) {
	v := struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{
		Error:  msg,
		Status: status,
	}
	b, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.WriteHeader(status)
	w.Write(b)
}

type apiAutoSell struct {
	Running  bool   `json:"running"`
	Command  string `json:"command"`
	Interval string `json:"interval"`
}

type statusResponse struct {
	Connected bool         `json:"connected"`
	Server    string       `json:"server"`
	Username  string       `json:"username"`
	Position  *game.Pos    `json:"position,omitzero"`
	AutoSell  apiAutoSell  `json:"autosell"`
	Collector string       `json:"collector"`
	Window    *game.Window `json:"window,omitzero"`
	Status    int          `json:"status"`
}

// status describes the bot. It must be called on the event loop.
func (robo *Robot) status() statusResponse {
	u := statusResponse{
		Connected: robo.session.Connected(),
		Server:    robo.cfg.Server.Addr(),
		Username:  robo.cfg.Server.Username,
		AutoSell: apiAutoSell{
			Running:  robo.cmd.Seller.Running() != nil,
			Command:  robo.cmd.Seller.Command(),
			Interval: robo.cmd.Seller.Interval().String(),
		},
		Collector: robo.cmd.Collector.State().String(),
		Window:    robo.session.Window(),
		Status:    http.StatusOK,
	}
	if u.Connected {
		p := robo.session.Position()
		u.Position = &p
	}
	return u
}

func (robo *Robot) apiStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "status"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	var u statusResponse
	if err := robo.do(ctx, func(context.Context) { u = robo.status() }); err != nil {
		log.ErrorContext(ctx, "couldn't get status", slog.Any("err", err))
		jsonerror(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	b, err := json.Marshal(&u)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}

func (robo *Robot) apiChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "chat"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	n := 50
	if s := r.FormValue("n"); s != "" {
		var err error
		n, err = strconv.Atoi(s)
		if err != nil || n <= 0 {
			log.WarnContext(ctx, "bad request", slog.String("n", s), slog.Any("err", err))
			jsonerror(w, http.StatusBadRequest, "invalid line count")
			return
		}
	}
	var lines []chatlog.Line
	if robo.chatlog != nil {
		var err error
		lines, err = chatlog.Recent(ctx, robo.chatlog, n)
		if err != nil {
			log.ErrorContext(ctx, "couldn't read chat log", slog.Any("err", err))
			jsonerror(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		lines = robo.history.Recent(n)
	}
	u := struct {
		Data   []chatlog.Line `json:"data"`
		Status int            `json:"status"`
	}{
		Data:   lines,
		Status: http.StatusOK,
	}
	b, err := json.Marshal(&u)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}
