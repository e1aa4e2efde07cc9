package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ghl-peak/peak-go/internal/chat"
	"github.com/ghl-peak/peak-go/internal/config"
	"github.com/ghl-peak/peak-go/internal/exchange"
	"github.com/ghl-peak/peak-go/internal/llm"
	"github.com/ghl-peak/peak-go/internal/logger"
	"github.com/ghl-peak/peak-go/internal/registry"
	"github.com/ghl-peak/peak-go/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		return
	}
	logger.SetLevel(cfg.LogLevel)

	st := store.OpenSQLite(cfg.Storage.Path)
	defer st.Close()

	reg := registry.New(st)

	streamer, err := llm.New(context.Background(), cfg.LLM)
	if err != nil {
		logger.L.Error("failed to initialize completion backend", "error", err)
		return
	}

	settings := exchange.NewSettings(cfg.LLM.Model, cfg.LLM.Temperature)
	protocol := exchange.New(reg, streamer, settings, cfg.LLM.SystemPrompt)

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.L.Info("starting server", "address", serverAddr, "provider", cfg.LLM.Provider)
	if err := http.ListenAndServe(serverAddr, newMux(reg, protocol, settings)); err != nil {
		logger.L.Error("server exited", "error", err)
	}
}

// newMux wires the HTTP surface over the registry and the exchange protocol.
func newMux(reg *registry.Registry, protocol *exchange.Protocol, settings *exchange.Settings) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, reg.Snapshot())
	})

	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		id := reg.CreateSession()
		writeJSON(w, map[string]string{"id": id})
	})

	mux.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		reg.DeleteSession(r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /sessions/{id}/select", func(w http.ResponseWriter, r *http.Request) {
		reg.SelectSession(r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})

	// Clears the current-session pointer, returning the client to the
	// no-active-session placeholder state.
	mux.HandleFunc("POST /select", func(w http.ResponseWriter, r *http.Request) {
		reg.SelectSession("")
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /send", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message   string `json:"message"`
			SessionID string `json:"sessionId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		flusher, _ := w.(http.Flusher)
		err := protocol.Send(r.Context(), body.SessionID, body.Message, func(text string) {
			if _, werr := w.Write([]byte(text)); werr != nil {
				logger.L.Warn("client disconnected mid-stream", "error", werr)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		})
		switch err {
		case nil:
		case exchange.ErrEmptyMessage:
			http.Error(w, "message is empty", http.StatusBadRequest)
		case exchange.ErrInFlight:
			http.Error(w, "an exchange is already in flight", http.StatusConflict)
		default:
			http.Error(w, "failed to process message", http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("GET /settings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"modelName":   settings.ModelName(),
			"temperature": settings.Temperature(),
		})
	})

	mux.HandleFunc("PUT /settings", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ModelName   string  `json:"modelName"`
			Temperature float32 `json:"temperature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ModelName == "" {
			http.Error(w, "invalid settings", http.StatusBadRequest)
			return
		}
		settings.Update(body.ModelName, body.Temperature)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /welcome", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, chat.WelcomeMessages)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Warn("failed to encode response", "error", err)
	}
}
