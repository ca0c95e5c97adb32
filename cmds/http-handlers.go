package cmds

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/d0rc/geo-locator/metrics"
	"github.com/d0rc/geo-locator/server"
)

// BuildRoutes wires the serving endpoints onto a new mux.
func BuildRoutes(ctx *server.Context) *http.ServeMux {
	mux := http.NewServeMux()

	processImage := server.RateLimit(ctx.Limiter, processImageHandler(ctx))
	mux.Handle("POST /process-image", server.AccessLog(ctx.Log, "process-image", processImage))
	// old clients still post to the misspelled route
	mux.Handle("POST /proccess-image", server.AccessLog(ctx.Log, "process-image", processImage))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

func processImageHandler(ctx *server.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		maxBody := ctx.Config.Server.MaxBodyBytes
		if maxBody <= 0 {
			maxBody = 16 << 20
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, &ErrorResponse{Detail: "error reading request: " + err.Error()})
			return
		}

		cacheKey := server.CacheKey(ctx.Config.VectorDB.Collection, body)
		if ctx.Cache != nil {
			cached, found, err := ctx.Cache.Get(r.Context(), cacheKey)
			if err != nil {
				ctx.Log.Error().Err(err).Msg("error reading result cache")
			} else if found {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "hit")
				_, _ = w.Write(cached)
				return
			}
		}

		request := &ProcessImageRequest{}
		if err := json.Unmarshal(body, request); err != nil {
			writeJSON(w, http.StatusBadRequest, &ErrorResponse{Detail: "error parsing request: " + err.Error()})
			return
		}

		response, err := ProcessImage(r.Context(), request, ctx)
		if err != nil {
			var clientErr *ClientError
			if errors.As(err, &clientErr) {
				writeJSON(w, http.StatusBadRequest, &ErrorResponse{Detail: clientErr.Detail})
				return
			}
			ctx.Log.Error().Err(err).Msg("error processing image")
			metrics.Tick("server.errors", 1)
			writeJSON(w, http.StatusInternalServerError, &ErrorResponse{Detail: "internal error"})
			return
		}

		respBytes, err := json.Marshal(response)
		if err != nil {
			ctx.Log.Error().Err(err).Msg("error serializing server response")
			writeJSON(w, http.StatusInternalServerError, &ErrorResponse{Detail: "internal error"})
			return
		}

		if ctx.Cache != nil {
			if err := ctx.Cache.Set(r.Context(), cacheKey, respBytes); err != nil {
				ctx.Log.Error().Err(err).Msg("error writing result cache")
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_, err = w.Write(respBytes)
		if err != nil {
			ctx.Log.Error().Err(err).Msg("error sending server response")
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
