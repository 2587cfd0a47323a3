package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/config"
	"github.com/nanjiek/pixiu-debounce/internal/debounce"
	"github.com/nanjiek/pixiu-debounce/internal/interceptor"
	"github.com/nanjiek/pixiu-debounce/internal/metrics"
	"github.com/nanjiek/pixiu-debounce/internal/rules"
	"github.com/nanjiek/pixiu-debounce/internal/shields"
	"github.com/nanjiek/pixiu-debounce/internal/site"
)

const maxPayloadBytes = 1 << 20

// Syncer runs one rule reload. *rules.Poller implements it.
type Syncer interface {
	SyncOnce(ctx context.Context) (bool, error)
}

// Publisher stores a raw rule payload for every instance. *repo.RedisRepo implements it.
type Publisher interface {
	PutRules(ctx context.Context, payload []byte) error
}

// ComponentInstaller learns where the rules component was installed.
// *source.FileSource implements it.
type ComponentInstaller interface {
	OnComponentReady(installDir string)
}

// Deps wires the server to the rest of the service. Syncer, Publisher and
// Component are optional. A nil Gate allows every navigation.
type Deps struct {
	Service   *debounce.Service
	Store     *rules.Store
	Throttles *interceptor.Factory
	Gate      shields.Gate
	Syncer    Syncer
	Publisher Publisher
	Component ComponentInstaller
	Format    string
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

type Server struct {
	cfg  config.ServerCfg
	deps Deps
	log  *zap.Logger
	srv  *http.Server
}

func NewServer(cfg config.ServerCfg, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Gate == nil {
		deps.Gate = shields.AllowAll{}
	}
	return &Server{cfg: cfg, deps: deps, log: log}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/debounce", s.debounceHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/redirect", s.redirectHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/rules", s.listRulesHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/rules", s.putRulesHandler).Methods(http.MethodPut)
	r.HandleFunc("/v1/rules/reload", s.reloadHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/rules/component", s.componentHandler).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	return r
}

func (s *Server) ListenAndServe() error {
	s.srv = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ---------------- Handlers ----------------

// debounceHandler runs the rule chain over one URL. It honours the same
// gate as navigations: when debouncing is off globally or for the URL's
// site, the URL comes back unchanged and no rule runs.
func (s *Server) debounceHandler(w http.ResponseWriter, r *http.Request) {
	var req DebounceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&req); err != nil {
		errResp(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	u, err := parseNavigationURL(req.URL)
	if err != nil {
		errResp(w, http.StatusBadRequest, err.Error())
		return
	}
	sfc := site.FromURL(u)
	if req.SiteForCookies != "" {
		if sfc, err = site.Parse(req.SiteForCookies); err != nil {
			errResp(w, http.StatusBadRequest, "invalid siteForCookies: "+err.Error())
			return
		}
	}

	if !s.deps.Gate.ShouldDoDebouncing(u) {
		s.deps.Metrics.ObserveDebounce(metrics.ResultSkipped)
		writeJSON(w, http.StatusOK, DebounceResponse{Changed: false, FinalURL: u.String()})
		return
	}

	final, changed, steps := s.deps.Service.Explain(u, sfc)
	result := metrics.ResultUnchanged
	if changed {
		result = metrics.ResultRedirected
	}
	s.deps.Metrics.ObserveDebounce(result)

	resp := DebounceResponse{Changed: changed, FinalURL: final.String()}
	if r.URL.Query().Get("explain") == "true" {
		resp.Steps = make([]StepDTO, 0, len(steps))
		for _, st := range steps {
			resp.Steps = append(resp.Steps, StepDTO{Index: st.Index, Outcome: st.Outcome.String(), URL: st.URL})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// restartRecorder stands in for the network stack: a restart becomes an
// HTTP redirect to the rewritten URL.
type restartRecorder struct {
	restarted bool
}

func (d *restartRecorder) RestartWithFlags(int) { d.restarted = true }

func (s *Server) redirectHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u, err := parseNavigationURL(q.Get("url"))
	if err != nil {
		errResp(w, http.StatusBadRequest, err.Error())
		return
	}

	var throttle *interceptor.Throttle
	if s.deps.Throttles != nil {
		throttle = s.deps.Throttles.MaybeCreate()
	}
	if throttle == nil {
		writeJSON(w, http.StatusOK, DebounceResponse{Changed: false, FinalURL: u.String()})
		return
	}

	req := interceptor.NewNavigation(u)
	if raw := q.Get("site"); raw != "" {
		sfc, err := site.Parse(raw)
		if err != nil {
			errResp(w, http.StatusBadRequest, "invalid site: "+err.Error())
			return
		}
		req.SiteForCookies = sfc
	}

	rec := &restartRecorder{}
	throttle.SetDelegate(rec)
	if throttle.WillStartRequest(req) && rec.restarted {
		http.Redirect(w, r, req.URL.String(), http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, DebounceResponse{Changed: false, FinalURL: u.String()})
}

func (s *Server) listRulesHandler(w http.ResponseWriter, r *http.Request) {
	set := s.deps.Store.Snapshot()
	resp := RulesResponse{
		Version:  set.Version,
		LoadedAt: set.LoadedAt,
		Rules:    make([]RuleDTO, 0, len(set.Rules)),
	}
	if set.Err != nil {
		resp.Error = set.Err.Error()
	}
	for i, rule := range set.Rules {
		spec := rule.Spec()
		resp.Rules = append(resp.Rules, RuleDTO{
			Index:   i,
			Action:  spec.Action,
			Param:   spec.Param,
			Include: spec.Include,
			Exclude: spec.Exclude,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) reloadHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Syncer == nil {
		errResp(w, http.StatusServiceUnavailable, "no rule source configured")
		return
	}
	changed, err := s.deps.Syncer.SyncOnce(r.Context())
	set := s.deps.Store.Snapshot()
	if err != nil {
		s.log.Warn("manual reload failed", zap.Error(err))
		errResp(w, http.StatusBadGateway, "reload failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ReloadResponse{Changed: changed, Version: set.Version, Rules: len(set.Rules)})
}

// componentHandler is called by the component updater once the rules
// component lands on disk. The reload itself happens asynchronously.
func (s *Server) componentHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Component == nil {
		errResp(w, http.StatusServiceUnavailable, "no file rule source configured")
		return
	}
	var req ComponentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&req); err != nil {
		errResp(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.InstallDir) == "" {
		errResp(w, http.StatusBadRequest, "installDir is required")
		return
	}
	s.deps.Component.OnComponentReady(req.InstallDir)
	s.log.Info("rules component ready", zap.String("installDir", req.InstallDir))
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "installDir": req.InstallDir})
}

func (s *Server) putRulesHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Publisher == nil {
		errResp(w, http.StatusServiceUnavailable, "redis is not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		errResp(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > maxPayloadBytes {
		errResp(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	parsed, err := debounce.ParseRules(body, s.deps.Format, s.log)
	if err != nil {
		errResp(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Publisher.PutRules(r.Context(), body); err != nil {
		s.log.Error("store rules failed", zap.Error(err))
		errResp(w, http.StatusBadGateway, "store rules failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "stored", "rules": len(parsed)})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ready := false
	select {
	case <-s.deps.Store.Ready():
		ready = true
	default:
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Rules: len(s.deps.Store.Rules()), Ready: ready})
}

var errNotNavigable = errors.New("url must be an absolute http(s) URL")

func parseNavigationURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.New("invalid url: " + err.Error())
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errNotNavigable
	}
	return u, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errResp(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Code: status, Message: msg})
}
