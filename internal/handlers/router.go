package handlers

import (
	"context"
	"net/http"
	"strings"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/Brownie44l1/fashionai/internal/pkg/logger"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// DataDir is served under /img/.
	DataDir string
	// CORSOrigins is a comma separated allow list; "*" allows any origin.
	CORSOrigins string
	// RateLimit is prediction requests per second per client; 0 disables it.
	RateLimit float64
	// TrustProxy takes the client address from forwarding headers.
	TrustProxy bool
	Logger     *logger.Logger
}

// NewRouter mounts the viewer API. ctx bounds background work such as
// rate limiter cleanup.
func NewRouter(ctx context.Context, h *Handler, opts RouterOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	limit := func(next http.Handler) http.Handler { return next }
	listLimit := limit
	if opts.RateLimit > 0 {
		rl := NewRateLimiter(ctx, opts.RateLimit, int(opts.RateLimit)*2, opts.TrustProxy)
		limit = rl.Middleware
		listLimit = rl.predictOnly
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/dataset/{mode}", listLimit(http.HandlerFunc(h.ListDataset))).Methods(http.MethodGet)
	api.HandleFunc("/image/{mode}/{id:[0-9]+}", h.CropImage).Methods(http.MethodGet)

	r.Handle("/predict", limit(http.HandlerFunc(h.Predict))).Methods(http.MethodPost)
	r.Handle("/predict/image", limit(http.HandlerFunc(h.PredictFromImage))).Methods(http.MethodPost)

	if opts.DataDir != "" {
		r.PathPrefix("/img/").Handler(http.StripPrefix("/img/", http.FileServer(http.Dir(opts.DataDir))))
	}

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(splitOrigins(opts.CORSOrigins)),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type"}),
	)

	return gorillahandlers.LoggingHandler(opts.Logger.Writer(), cors(r))
}

func splitOrigins(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
