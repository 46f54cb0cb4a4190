package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bricodata/retail-cli/internal/model"
	"github.com/bricodata/retail-cli/internal/service"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prediction HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, closeStore, err := newService(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		// Both models must be loadable before the server accepts traffic.
		if err := svc.LoadChurn(); err != nil {
			return err
		}
		if err := svc.LoadForecast(); err != nil {
			return err
		}
		if err := svc.EnsureFeatures(); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(svc),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(svc *service.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/at-risk", func(w http.ResponseWriter, req *http.Request) {
		threshold := 0.5
		if raw := req.URL.Query().Get("threshold"); raw != "" {
			t, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				writeError(w, eris.Wrapf(model.ErrData, "invalid threshold %q", raw))
				return
			}
			threshold = t
		}

		rows, err := svc.FilterAtRisk(threshold)
		if err != nil {
			writeError(w, err)
			return
		}
		if rows == nil {
			rows = []model.RiskRow{}
		}
		writeJSON(w, http.StatusOK, rows)
	})

	r.Get("/explain/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil {
			writeError(w, eris.Wrapf(model.ErrData, "invalid customer id %q", chi.URLParam(req, "id")))
			return
		}

		exp, err := svc.ExplainCustomer(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exp)
	})

	r.Get("/forecast", func(w http.ResponseWriter, req *http.Request) {
		days := 7
		if raw := req.URL.Query().Get("days"); raw != "" {
			d, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, eris.Wrapf(model.ErrData, "invalid days %q", raw))
				return
			}
			days = d
		}

		points, err := svc.Forecast(days)
		if err != nil {
			writeError(w, err)
			return
		}
		for i := range points {
			points[i].Value = clampNonNegative(points[i].Value)
			points[i].Lower = clampNonNegative(points[i].Lower)
			points[i].Upper = clampNonNegative(points[i].Upper)
		}
		writeJSON(w, http.StatusOK, points)
	})

	r.Get("/tomorrow", func(w http.ResponseWriter, req *http.Request) {
		p, err := svc.TomorrowForecast()
		if err != nil {
			writeError(w, err)
			return
		}
		p.Value = clampNonNegative(p.Value)
		p.Lower = clampNonNegative(p.Lower)
		p.Upper = clampNonNegative(p.Upper)
		writeJSON(w, http.StatusOK, p)
	})

	r.Get("/importance", func(w http.ResponseWriter, req *http.Request) {
		weights, err := svc.ChurnFeatureImportance()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, weights)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case eris.Is(err, model.ErrData):
		status = http.StatusBadRequest
	case eris.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case eris.Is(err, model.ErrState):
		status = http.StatusServiceUnavailable
	case eris.Is(err, model.ErrInference):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
