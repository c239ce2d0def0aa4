package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

func previewCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	dir, err := filepath.Abs(args.Preview.Dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("frontend build not found, run the build first: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("frontend build path must be a directory: %s", dir)
	}

	ln, err := net.Listen("tcp", args.Preview.Addr)
	if err != nil {
		return err
	}
	return servePreview(ctx, ln, dir, logger)
}

// servePreview serves dir on ln until ctx is cancelled.
func servePreview(ctx context.Context, ln net.Listener, dir string, logger zerolog.Logger) error {
	logger = logger.With().Str("dir", dir).Str("addr", ln.Addr().String()).Logger()

	srv := &http.Server{
		Handler:           previewHandler(dir, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info().Msgf("serving frontend on http://localhost:%d", ln.Addr().(*net.TCPAddr).Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not stop preview server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("preview server stopped")
	return nil
}

// previewHandler serves static files and falls back to index.html for
// client side routes.
func previewHandler(dir string, logger zerolog.Logger) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")

		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) && path.Ext(r.URL.Path) == "" {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
}
