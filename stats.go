/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Seednode/roulette/gamelog"
	"github.com/julienschmidt/httprouter"
	"gopkg.in/yaml.v3"
)

// recentEntries is how much history the stats view lists.
const recentEntries = 10

type statsResponse struct {
	Table     string             `json:"table" yaml:"table"`
	Policy    gamelog.Policy     `json:"policy" yaml:"policy"`
	LastReset time.Time          `json:"last_reset" yaml:"last_reset"`
	Total     int                `json:"total" yaml:"total"`
	Top       *gamelog.SlotStat  `json:"top,omitempty" yaml:"top,omitempty"`
	Slots     []gamelog.SlotStat `json:"slots" yaml:"slots"`
	Recent    []gamelog.Entry    `json:"recent" yaml:"recent"`
}

type policyRequest struct {
	Policy string `json:"policy"`
}

type policyResponse struct {
	Policy    gamelog.Policy `json:"policy"`
	LastReset time.Time      `json:"last_reset"`
}

func openGameLog(ctx context.Context, cfg *Config) (*gamelog.Log, error) {
	dialect, err := gamelog.ParseDialect(cfg.logDialect)
	if err != nil {
		return nil, err
	}

	policy, err := gamelog.ParsePolicy(cfg.resetInterval)
	if err != nil {
		return nil, err
	}

	store, err := gamelog.OpenStore(ctx, dialect, cfg.logDSN)
	if err != nil {
		return nil, err
	}

	opts := gamelog.Options{
		Logger: cfg.log,
	}
	if cfg.resetExplicit {
		opts.Policy = policy
	}

	games, err := gamelog.Open(ctx, store, opts)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	cfg.log.Info().
		Str("dialect", string(dialect)).
		Str("policy", string(games.Policy())).
		Msg("LOG: game log opened")

	return games, nil
}

// writeJSON returns the number of body bytes written.
func writeJSON(w http.ResponseWriter, status int, v any) (int, error) {
	out, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "unable to encode response", http.StatusInternalServerError)
		return 0, err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	return w.Write(append(out, '\n'))
}

func tableStats(ctx context.Context, games *gamelog.Log, tableID string) (statsResponse, error) {
	if _, err := games.CheckAndReset(ctx); err != nil {
		return statsResponse{}, err
	}

	slots, err := games.Stats(ctx, tableID)
	if err != nil {
		return statsResponse{}, err
	}

	recent, err := games.Recent(ctx, tableID, recentEntries)
	if err != nil {
		return statsResponse{}, err
	}

	resp := statsResponse{
		Table:     tableID,
		Policy:    games.Policy(),
		LastReset: games.LastReset(),
		Slots:     slots,
		Recent:    recent,
	}

	for _, st := range slots {
		resp.Total += st.Count
	}
	if top, ok := gamelog.Top(slots); ok {
		resp.Top = &top
	}

	return resp, nil
}

func serveStats(cfg *Config, games *gamelog.Log, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		tableID := ps.ByName("id")
		if !validTableID(tableID) {
			http.Error(w, "invalid table id", http.StatusBadRequest)
			return
		}

		resp, err := tableStats(r.Context(), games, tableID)
		if err != nil {
			cfg.log.Error().Err(err).Str("table", tableID).Msg("LOG: reading stats failed")
			http.Error(w, "unable to read stats", http.StatusInternalServerError)
			return
		}

		securityHeaders(cfg, w)

		if r.URL.Query().Get("format") == "yaml" {
			out, err := yaml.Marshal(resp)
			if err != nil {
				http.Error(w, "unable to encode stats", http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/yaml; charset=utf-8")

			written, err := w.Write(out)
			if err != nil {
				errs <- err

				return
			}

			logServed(cfg, "stats", r, written, startTime)

			return
		}

		written, err := writeJSON(w, http.StatusOK, resp)
		if err != nil {
			errs <- err

			return
		}

		logServed(cfg, "stats", r, written, startTime)
	}
}

func serveStatsReset(cfg *Config, games *gamelog.Log, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tableID := ps.ByName("id")
		if !validTableID(tableID) {
			http.Error(w, "invalid table id", http.StatusBadRequest)
			return
		}

		if err := games.Reset(r.Context()); err != nil {
			cfg.log.Error().Err(err).Msg("LOG: manual reset failed")
			http.Error(w, "unable to reset stats", http.StatusInternalServerError)
			return
		}

		resp, err := tableStats(r.Context(), games, tableID)
		if err != nil {
			http.Error(w, "unable to read stats", http.StatusInternalServerError)
			return
		}

		securityHeaders(cfg, w)

		if _, err := writeJSON(w, http.StatusOK, resp); err != nil {
			errs <- err
		}
	}
}

func servePolicy(cfg *Config, games *gamelog.Log, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		if r.Method == http.MethodPost {
			var req policyRequest
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			p, err := gamelog.ParsePolicy(req.Policy)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			if err := games.SetPolicy(r.Context(), p); err != nil {
				if errors.Is(err, gamelog.ErrUnknownPolicy) {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}

				cfg.log.Error().Err(err).Msg("LOG: saving policy failed")
				http.Error(w, "unable to save policy", http.StatusInternalServerError)
				return
			}

			cfg.log.Info().Str("policy", string(p)).Msg("LOG: reset policy changed")
		}

		if _, err := writeJSON(w, http.StatusOK, policyResponse{
			Policy:    games.Policy(),
			LastReset: games.LastReset(),
		}); err != nil {
			errs <- err
		}
	}
}

// registerStats sets up routes so that:
//   - $path/:id/stats        → per-slot selection counts for that table
//   - $path/:id/stats/reset  → clears the game log
//   - /stats/policy          → reads or changes the reset policy
func registerStats(cfg *Config, path string, games *gamelog.Log, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+path+"/:id/stats", serveStats(cfg, games, errs))
	mux.POST(cfg.prefix+path+"/:id/stats/reset", serveStatsReset(cfg, games, errs))

	mux.GET(cfg.prefix+"/stats/policy", servePolicy(cfg, games, errs))
	mux.POST(cfg.prefix+"/stats/policy", servePolicy(cfg, games, errs))
}
