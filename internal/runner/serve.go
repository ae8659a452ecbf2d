package runner

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/fashionai/internal/handlers"
	"github.com/Brownie44l1/fashionai/internal/predict"
	"github.com/Brownie44l1/fashionai/internal/viewer"
)

const shutdownTimeout = 10 * time.Second

// classNamer is implemented by classifiers that know their label names.
type classNamer interface {
	ClassNames() []string
}

// Serve runs the dataset viewer on the configured address until ctx is done.
func (r *Runner) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.cfg.Viewer.Addr)
	if err != nil {
		return err
	}
	return r.serve(ctx, ln)
}

// Handler builds the viewer HTTP handler. ctx bounds its background work.
func (r *Runner) Handler(ctx context.Context) (http.Handler, error) {
	var (
		agg     *predict.Aggregator
		pred    predict.Predictor
		classes []string
	)
	if r.clf != nil {
		agg = predict.NewAggregator(r.clf, r.parser, r.log)
		pred = r.clf
		if cn, ok := r.clf.(classNamer); ok {
			classes = cn.ClassNames()
		}
	}

	dataDir := r.cfg.ExpandedDataDir()
	svc, err := viewer.NewService(viewer.Config{
		Dataset:    r.ds,
		DataDir:    dataDir,
		Aggregator: agg,
		CacheSize:  r.cfg.Viewer.CacheSize,
		Logger:     r.log,
	})
	if err != nil {
		return nil, err
	}

	h := handlers.NewHandler(svc, pred, classes, r.log)
	return handlers.NewRouter(ctx, h, handlers.RouterOptions{
		DataDir:     dataDir,
		CORSOrigins: r.cfg.Viewer.CORSOrigins,
		RateLimit:   r.cfg.Viewer.RateLimit,
		TrustProxy:  r.cfg.Viewer.TrustProxy,
		Logger:      r.log,
	}), nil
}

func (r *Runner) serve(ctx context.Context, ln net.Listener) error {
	handler, err := r.Handler(ctx)
	if err != nil {
		ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.log.Info("viewer listening", "addr", ln.Addr().String(), "model_loaded", r.clf != nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.log.Info("shutting down viewer")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
