// Package gateway assembles the edge pipeline (C8): CORS, body limit,
// timeout, rate limit, auth, header injection, then discovery-backed
// proxying to one of the backend services spec.md's prefix table names.
package gateway

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridianclinic/platform/internal/gateway/discovery"
	gwmw "github.com/meridianclinic/platform/internal/gateway/middleware"
	"github.com/meridianclinic/platform/internal/identity"
	"github.com/meridianclinic/platform/internal/platform/apierror"
	"github.com/meridianclinic/platform/internal/platform/ratelimit"
)

// route maps a path prefix to the logical service name the discovery
// registry tracks instances under, per spec.md §4.8's prefix table.
type route struct {
	prefix  string
	service string
}

// routingTable is the authoritative prefix -> service mapping. Only
// auth, appointment, and audit services exist in this deployment; the
// remaining prefixes are wired so the gateway is ready to front them the
// moment those services ship, rather than hard-coding a subset.
var routingTable = []route{
	{prefix: "/api/auth/", service: "auth-service"},
	{prefix: "/api/patients/", service: "patient-service"},
	{prefix: "/api/doctors/", service: "doctor-service"},
	{prefix: "/api/appointments/", service: "appointment-service"},
	{prefix: "/api/medical-records/", service: "medical-records-service"},
	{prefix: "/api/facilities/", service: "facility-service"},
	{prefix: "/api/notifications/", service: "notification-service"},
	{prefix: "/api/audit/", service: "audit-service"},
}

func serviceFor(path string) (string, bool) {
	for _, rt := range routingTable {
		if strings.HasPrefix(path, rt.prefix) || path == strings.TrimSuffix(rt.prefix, "/") {
			return rt.service, true
		}
	}
	return "", false
}

// DefaultPublicPaths is the bypass list spec.md §4.8 step 4 specifies.
func DefaultPublicPaths() gwmw.PublicPaths {
	return gwmw.PublicPaths{
		"/api/auth/login":    true,
		"/api/auth/register": true,
		"/q/health/*":        true,
		"/q/metrics":         true,
		"/q/openapi":         true,
		"/swagger-ui/*":      true,
		"/":                  true,
	}
}

// Options configures the assembled gateway handler.
type Options struct {
	AllowedOrigins     []string
	BodyLimitBytes     int64
	RequestTimeout     time.Duration
	PublicPaths        gwmw.PublicPaths
	RateLimitPerMinute int
}

// New assembles the full middleware pipeline and the discovery-backed
// reverse proxy, in the strict order spec.md §4.8 mandates.
func New(registry *discovery.Registry, strategy discovery.Strategy, limiter ratelimit.Limiter, tokens identity.TokenProvider, log *slog.Logger, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(gwmw.Recovery)
	r.Use(gwmw.RequestLogger)
	r.Use(gwmw.CORS(opts.AllowedOrigins))
	r.Use(gwmw.BodyLimit(opts.BodyLimitBytes))
	r.Use(gwmw.Timeout(opts.RequestTimeout))
	rateLimit := gwmw.RateLimit(limiter, opts.RateLimitPerMinute)
	r.Use(func(next http.Handler) http.Handler {
		limited := rateLimit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.PublicPaths.Allows(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	})
	r.Use(gwmw.Auth(tokens, opts.PublicPaths))
	r.Use(gwmw.InjectHeaders)

	r.Get("/q/health/live", healthLive)
	r.Get("/q/health/ready", healthReady(registry))

	p := &proxy{registry: registry, strategy: strategy, log: log}
	r.NotFound(p.ServeHTTP)

	return r
}

type proxy struct {
	registry *discovery.Registry
	strategy discovery.Strategy
	log      *slog.Logger
}

func (p *proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	service, ok := serviceFor(r.URL.Path)
	if !ok {
		apierror.WriteJSON(w, r, apierror.New(apierror.NotFound, "no_route", "no backend service matches this path"))
		return
	}

	healthy := p.registry.Healthy(service)
	if len(healthy) == 0 {
		apierror.WriteJSON(w, r, apierror.New(apierror.UpstreamUnavailable, "service_unavailable", "no healthy instance of "+service))
		return
	}

	inst := p.strategy.Select(healthy)
	if inst == nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.UpstreamUnavailable, "service_unavailable", "no healthy instance of "+service))
		return
	}

	target, err := url.Parse(inst.BaseURL)
	if err != nil {
		apierror.WriteJSON(w, r, apierror.Wrap(apierror.Unexpected, "bad_upstream_url", "upstream instance has an invalid base url", err))
		return
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	originalDirector := rp.Director
	rp.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = target.Host
	}
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		p.log.Warn("proxy_error", "service", service, "instance", inst.ID, "error", err)
		apierror.WriteJSON(w, r, apierror.New(apierror.UpstreamUnavailable, "proxy_failed", "upstream request failed"))
	}

	rp.ServeHTTP(w, r)
}

func healthLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"UP"}`))
}

// healthReady reports 200 only if at least the auth service has a
// healthy instance, per spec.md §4.8's readiness contract, with
// per-service status in the body for operators.
func healthReady(registry *discovery.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]string)
		authHealthy := false
		for _, rt := range routingTable {
			healthy := registry.Healthy(rt.service)
			if len(healthy) > 0 {
				status[rt.service] = "UP"
			} else {
				status[rt.service] = "DOWN"
			}
			if rt.service == "auth-service" && len(healthy) > 0 {
				authHealthy = true
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !authHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		body := `{"services":{`
		first := true
		for svc, st := range status {
			if !first {
				body += ","
			}
			first = false
			body += `"` + svc + `":"` + st + `"`
		}
		body += "}}"
		w.Write([]byte(body))
	}
}
