// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package lookup

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/boundaryatlas/internal/atlaserrors"
	"github.com/kraklabs/boundaryatlas/internal/logging"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
)

// NewHTTPHandler builds the Lookup Service's HTTP façade: GET /lookup and
// GET /metrics. This is the non-goal-adjacent "human-facing" surface
// spec.md treats as an external collaborator consuming the stable
// `lookup` contract, written the way the pack's HTTP-serving repos wire a
// chi router.
func NewHTTPHandler(svc *Service, logger *slog.Logger) http.Handler {
	logger = logging.OrDefault(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/lookup", func(w http.ResponseWriter, req *http.Request) {
		latStr := req.URL.Query().Get("lat")
		lonStr := req.URL.Query().Get("lon")
		lat, errLat := strconv.ParseFloat(latStr, 64)
		lon, errLon := strconv.ParseFloat(lonStr, 64)
		if errLat != nil || errLon != nil {
			writeJSONError(w, http.StatusBadRequest, "lat and lon query parameters must be numeric")
			return
		}

		var (
			id    string
			found bool
			err   error
		)
		if layer := req.URL.Query().Get("layer"); layer != "" {
			id, found, err = svc.LookupLayer(lat, lon, registry.Layer(layer))
		} else {
			id, found, err = svc.Lookup(lat, lon)
		}
		if err != nil {
			if kind, ok := atlaserrors.As(err); ok && kind.Kind == atlaserrors.KindInvalidCoordinate {
				writeJSONError(w, http.StatusBadRequest, kind.Error())
				return
			}
			logger.Error("lookup failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"found": found,
			"id":    id,
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
