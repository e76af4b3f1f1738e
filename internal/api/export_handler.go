package api

import (
	"fmt"
	"net/http"

	"github.com/heimdex/heimdex-render/internal/export"
)

const maxEDLNameLength = 120

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EDLRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.FrameRate < 0 {
			WriteError(w, http.StatusBadRequest, "frame_rate must not be negative", "BAD_REQUEST")
			return
		}
		p, err := decodeProject(req.Project)
		if err != nil {
			writeServiceError(w, err, cfg.Logger)
			return
		}

		name := export.SanitizeName(p.Name, maxEDLNameLength)
		if name == "" {
			name = "heimdex_export"
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".edl"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(export.FromProject(p, req.FrameRate)))
	}
}
