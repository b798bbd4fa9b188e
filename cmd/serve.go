package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/searchterm-cli/internal/model"
	"github.com/sells-group/searchterm-cli/internal/pipeline"
	"github.com/sells-group/searchterm-cli/internal/store"
)

var servePort int

// categorySetter is the one store operation the report server needs.
type categorySetter interface {
	PutClassifications(ctx context.Context, account string, entries map[string]store.CachedClass) error
}

// newReportRouter serves the account's run artifacts and accepts category
// overrides from the report page. Overrides land in the cache, so the next
// pipeline run picks them up as cache hits.
func newReportRouter(accountKey, dir string, taxonomy []string, st categorySetter) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Post("/api/category", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Term     string `json:"term"`
			Category string `json:"category"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		term := model.NormalizeTerm(body.Term)
		if term == "" {
			http.Error(w, `{"error":"term is required"}`, http.StatusBadRequest)
			return
		}
		valid := false
		for _, cat := range taxonomy {
			if body.Category == cat {
				valid = true
				break
			}
		}
		if !valid {
			http.Error(w, `{"error":"unknown category"}`, http.StatusBadRequest)
			return
		}

		err := st.PutClassifications(req.Context(), accountKey, map[string]store.CachedClass{
			term: {Category: body.Category, Confidence: 1.0},
		})
		if err != nil {
			zap.L().Error("serve: category override failed",
				zap.String("term", term),
				zap.Error(err),
			)
			http.Error(w, `{"error":"write failed"}`, http.StatusInternalServerError)
			return
		}

		zap.L().Info("serve: category overridden",
			zap.String("account", accountKey),
			zap.String("term", term),
			zap.String("category", body.Category),
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status":   "updated",
			"term":     term,
			"category": body.Category,
		})
	})

	r.Handle("/*", http.FileServer(http.Dir(dir)))
	return r
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an account's reports with a category-override endpoint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		alias, _ := cmd.Flags().GetString("account")
		acc, err := lookupAccount(alias)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		dir := filepath.Join(cfg.Output.Dir, acc.Slug())
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", servePort),
			Handler: newReportRouter(acc.Key, dir, pipeline.Taxonomy(acc), st),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("serve: shutting down")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("serve: listening",
			zap.Int("port", servePort),
			zap.String("dir", dir),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve: listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("account", "", "account key or alias (required)")
	serveCmd.Flags().IntVar(&servePort, "port", 3456, "server port")
	_ = serveCmd.MarkFlagRequired("account")
	rootCmd.AddCommand(serveCmd)
}
