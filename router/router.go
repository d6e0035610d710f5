package router

import (
	"net/http"

	draftHandler "reviewdraft/internal/draft"
	"reviewdraft/internal/draft/service"
	"reviewdraft/middleware"
	"reviewdraft/socket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(hub *socket.Hub, drafts *service.DraftService, gatherer prometheus.Gatherer, jwtSecret string) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.AuthMiddleware(jwtSecret)

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r, middleware.UserID(r.Context()))
	})
	mux.Handle("/ws", auth(wsHandler))

	// REST API
	h := draftHandler.NewDraftHandler(drafts)
	mux.Handle("/api/drafts", auth(http.HandlerFunc(h.Drafts)))

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return middleware.CORSMiddleware(mux)
}
