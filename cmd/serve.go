package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/soil-explorer/internal/enrich"
	"github.com/sells-group/soil-explorer/internal/export"
	"github.com/sells-group/soil-explorer/internal/grid"
	"github.com/sells-group/soil-explorer/internal/metrics"
	"github.com/sells-group/soil-explorer/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for grid previews and runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		prov := metrics.New(version)
		fetcher, err := initFetcher(st, cfg.Store.Cache)
		if err != nil {
			return err
		}
		runner := &jobRunner{
			store:   st,
			fetcher: fetcher,
			metrics: enrich.NewMetrics(prov.Registerer()),
		}

		api := newAPI(ctx, st, runner, prov)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		api.wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api serves grid previews, run history and asynchronous runs.
type api struct {
	ctx            context.Context // parent of background runs
	store          store.Store
	runner         *jobRunner // nil disables POST /v1/runs
	metrics        *metrics.Provider
	maxCells       int
	outputDir      string // file outputs of API runs are confined here
	allowedOrigins []string

	jobs sync.WaitGroup
}

func newAPI(ctx context.Context, st store.Store, runner *jobRunner, prov *metrics.Provider) *api {
	return &api{
		ctx:            ctx,
		store:          st,
		runner:         runner,
		metrics:        prov,
		maxCells:       cfg.Server.MaxCells,
		outputDir:      cfg.Server.OutputDir,
		allowedOrigins: cfg.Server.AllowedOrigins,
	}
}

// wait blocks until background runs finish.
func (a *api) wait() { a.jobs.Wait() }

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if a.metrics != nil {
		r.Use(a.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/grid", a.handleGrid)
		r.Get("/runs", a.handleListRuns)
		r.Post("/runs", a.handleCreateRun)
		r.Get("/runs/{id}", a.handleGetRun)
		r.Get("/runs/{id}/cells", a.handleRunCells)
	})
	return r
}

// handleGrid returns the cells of an area as GeoJSON without lookups.
// Query: bbox=lon1,lat1,lon2,lat2&resolution=meters[&crs=...]
func (a *api) handleGrid(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bbox, err := parseBBox(q.Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resolution, err := strconv.ParseFloat(q.Get("resolution"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "resolution must be a number of meters")
		return
	}
	crs := export.WGS84
	if s := q.Get("crs"); s != "" {
		if crs, err = export.ParseCRS(s); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	aoi, err := a.plan(bbox, resolution)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := aoi.Divide(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeGeoJSON(w, export.FeatureCollection(aoi.Cells(), crs))
}

func (a *api) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := a.store.ListRuns(r.Context(), store.RunFilter{
		Status: store.RunStatus(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunCells returns the stored cells of a run as GeoJSON.
func (a *api) handleRunCells(w http.ResponseWriter, r *http.Request) {
	run, err := a.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	cells, err := a.store.GetCells(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeGeoJSON(w, export.FeatureCollection(cells, export.WGS84))
}

type createRunRequest struct {
	Name       string    `json:"name"`
	BBox       []float64 `json:"bbox"`
	Resolution float64   `json:"resolution"`
	Workers    int       `json:"workers"`
	Format     string    `json:"format"`
	CRS        string    `json:"crs"`
	Output     string    `json:"output"`
}

// handleCreateRun records a run and processes it in the background.
func (a *api) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if a.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "runs are disabled")
		return
	}

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.BBox) != 4 {
		writeError(w, http.StatusBadRequest, "bbox must have 4 values (lon1, lat1, lon2, lat2)")
		return
	}
	if req.Workers == 0 {
		req.Workers = cfg.Enrich.Workers
	}
	if req.Format == "" {
		req.Format = cfg.Export.Format
	}
	if req.CRS == "" {
		req.CRS = cfg.Export.CRS
	}
	target, err := resolveTarget(req.Format, req.CRS, req.Output, req.Output)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if target.Output, err = a.outputPath(target); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	spec := jobSpec{
		Name:       req.Name,
		BBox:       grid.BBox{Lon1: req.BBox[0], Lat1: req.BBox[1], Lon2: req.BBox[2], Lat2: req.BBox[3]},
		Resolution: req.Resolution,
		Workers:    req.Workers,
		MaxCells:   a.maxCells,
		Target:     target,
	}
	if _, err := a.plan(spec.BBox, spec.Resolution); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if spec.Workers < 1 {
		writeError(w, http.StatusBadRequest, enrich.ErrInvalidWorkers.Error())
		return
	}

	run, aoi, err := a.runner.start(r.Context(), spec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.jobs.Add(1)
	go func() {
		defer a.jobs.Done()
		if _, err := a.runner.process(a.ctx, run, aoi, spec); err != nil {
			zap.L().Error("background run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"run_id": run.ID,
		"output": target.Output,
	})
}

// outputPath confines a client-supplied output. File outputs must be local
// relative paths and are placed under the server output directory; postgis
// outputs must be plain table names.
func (a *api) outputPath(t exportTarget) (string, error) {
	if t.Format == export.FormatPostGIS {
		if !export.ValidTableName(t.Output) {
			return "", eris.Errorf("output %q is not a valid table name", t.Output)
		}
		return t.Output, nil
	}
	if !filepath.IsLocal(t.Output) {
		return "", eris.Errorf("output %q must be a relative path without '..'", t.Output)
	}
	return filepath.Join(a.outputDir, t.Output), nil
}

// plan validates an area and checks its cell count against the server cap.
func (a *api) plan(bbox grid.BBox, resolution float64) (*grid.AreaOfInterest, error) {
	aoi, err := grid.NewFromBBox(bbox, resolution)
	if err != nil {
		return nil, err
	}
	aoi.MaxCells = a.maxCells
	if _, _, err := aoi.PlannedDimensions(); err != nil {
		return nil, err
	}
	return aoi, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeGeoJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
