package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/darkmoon-dice/internal/hub"
	"github.com/DoyleJ11/darkmoon-dice/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Hub      *hub.Hub
	WS       ws.Options
	Gatherer prometheus.Gatherer
	Logger   *zap.SugaredLogger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.WS.Logger == nil {
		d.WS.Logger = d.Logger
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(enableCors)

	// Long lived, so kept clear of the request timeout.
	r.Get("/ws", ws.Handler(d.Hub, d.WS))

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(d.Logger))
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/", Banner)
		r.Get("/healthz", Healthz)
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", CreateRoom(d.Hub, d.Logger))
			r.Get("/{code}", RoomStats(d.Hub))
		})
	})
	return r
}
