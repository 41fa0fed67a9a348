package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type change struct {
	SHA         string    `json:"sha"`
	Author      string    `json:"author"`
	Message     string    `json:"message"`
	CommittedAt time.Time `json:"committed_at"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/changes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		service := r.URL.Query().Get("service")
		changes := []change{
			{
				SHA:         "4f2c91ab8e07d3aa51c6640be2f1d9c2b0a7e4d1",
				Author:      "dev@example.com",
				Message:     "Bump connection pool size for " + service,
				CommittedAt: time.Now().Add(-25 * time.Minute),
			},
			{
				SHA:         "9b1de407cc15f28a06b3d1742afe69c8d50f12e3",
				Author:      "dev@example.com",
				Message:     "Tighten retry budget on downstream calls",
				CommittedAt: time.Now().Add(-2 * time.Hour),
			},
		}
		writeJSON(w, map[string]any{"changes": changes})
	})

	logger := log.New(log.Writer(), "changes-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":9090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :9090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
