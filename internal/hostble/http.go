// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostble

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Thermoquad/lumen/pkg/bluefruit"
)

// AttributeJSON is the HTTP representation of an attribute value.
type AttributeJSON struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"` // null while unset
	Unit  string   `json:"unit,omitempty"`
}

func toJSON(r Reading) AttributeJSON {
	a := AttributeJSON{Name: r.Characteristic.Name, Unit: r.Characteristic.Unit}
	if !r.Value.IsSentinel() {
		var v float64
		switch r.Value.Format.Kind {
		case bluefruit.KindFixed:
			v = r.Value.Float()
		case bluefruit.KindBool:
			if r.Value.Bool() {
				v = 1
			}
		default:
			v = float64(r.Value.Uint())
		}
		a.Value = &v
	}
	return a
}

// Handler serves the node's attributes:
//
//	GET /attributes          every readable attribute
//	GET /attributes/{name}   one readable attribute
//	PUT /attributes/{name}   write an intake attribute, body {"value": x}
func Handler(c *Client, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	mux := http.NewServeMux()

	mux.HandleFunc("GET /attributes", func(w http.ResponseWriter, r *http.Request) {
		readings, err := c.ReadAll()
		if err != nil {
			logger.Error("read attributes", "err", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		out := make([]AttributeJSON, len(readings))
		for i, rd := range readings {
			out[i] = toJSON(rd)
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("GET /attributes/{name}", func(w http.ResponseWriter, r *http.Request) {
		ch, ok := byName(c.reg, r.PathValue("name"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		rd, err := c.Read(ch)
		switch {
		case errors.Is(err, ErrNotReadable):
			http.Error(w, err.Error(), http.StatusMethodNotAllowed)
			return
		case err != nil:
			logger.Error("read attribute", "name", ch.Name, "err", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, toJSON(rd))
	})

	mux.HandleFunc("PUT /attributes/{name}", func(w http.ResponseWriter, r *http.Request) {
		ch, ok := byName(c.reg, r.PathValue("name"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Value *float64 `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
			http.Error(w, "body must be {\"value\": <number>}", http.StatusBadRequest)
			return
		}
		v, err := ch.Format.ParseFloat(*body.Value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = c.Write(ch, v)
		switch {
		case errors.Is(err, ErrNotWritable):
			http.Error(w, err.Error(), http.StatusMethodNotAllowed)
			return
		case err != nil:
			logger.Error("write attribute", "name", ch.Name, "err", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		logger.Info("wrote attribute", "name", ch.Name, "value", *body.Value)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func byName(reg *bluefruit.Registry, name string) (bluefruit.Characteristic, bool) {
	for _, ch := range reg.All() {
		if ch.Name == name {
			return ch, true
		}
	}
	return bluefruit.Characteristic{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
