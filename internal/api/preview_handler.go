package api

import (
	"net/http"

	"github.com/heimdex/heimdex-render/internal/preview"
)

func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PreviewRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Timestamp == nil {
			WriteError(w, http.StatusBadRequest, "timestamp is required", "BAD_REQUEST")
			return
		}
		p, err := decodeProject(req.Project)
		if err != nil {
			writeServiceError(w, err, cfg.Logger)
			return
		}

		res, ok := awaitPreview(w, r, cfg, preview.Request{
			SessionID: req.SessionID,
			Kind:      preview.KindSegment,
			Project:   p,
			Timestamp: *req.Timestamp,
			Duration:  req.Duration,
		})
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, PreviewResponse{
			PreviewURL: res.Artifact.URL,
			Timestamp:  res.Artifact.Timestamp,
			Duration:   res.Artifact.Duration,
			SessionID:  req.SessionID,
		})
	}
}

func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PreviewRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Timestamp == nil {
			WriteError(w, http.StatusBadRequest, "timestamp is required", "BAD_REQUEST")
			return
		}
		p, err := decodeProject(req.Project)
		if err != nil {
			writeServiceError(w, err, cfg.Logger)
			return
		}

		res, ok := awaitPreview(w, r, cfg, preview.Request{
			SessionID: req.SessionID,
			Kind:      preview.KindFrame,
			Project:   p,
			Timestamp: *req.Timestamp,
		})
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, FrameResponse{
			FrameURL:  res.Artifact.URL,
			Timestamp: res.Artifact.Timestamp,
			SessionID: req.SessionID,
		})
	}
}

func thumbnailHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PreviewRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Timestamp == nil {
			WriteError(w, http.StatusBadRequest, "timestamp is required", "BAD_REQUEST")
			return
		}
		p, err := decodeProject(req.Project)
		if err != nil {
			writeServiceError(w, err, cfg.Logger)
			return
		}

		res, ok := awaitPreview(w, r, cfg, preview.Request{
			Kind:      preview.KindThumbnail,
			Project:   p,
			Timestamp: *req.Timestamp,
		})
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, ThumbnailResponse{
			ThumbnailURL: res.Artifact.URL,
			Timestamp:    res.Artifact.Timestamp,
		})
	}
}

func stripHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StripRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := decodeProject(req.Project)
		if err != nil {
			writeServiceError(w, err, cfg.Logger)
			return
		}

		res, ok := awaitPreview(w, r, cfg, preview.Request{
			Kind:      preview.KindStrip,
			Project:   p,
			Intervals: req.Intervals,
			Duration:  req.ThumbDuration,
		})
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, StripToResponse(res.Artifacts))
	}
}

// awaitPreview issues req and holds the response until it resolves. It
// writes the error response itself and reports false when there is nothing
// left to send.
func awaitPreview(w http.ResponseWriter, r *http.Request, cfg ServerConfig, req preview.Request) (preview.Result, bool) {
	pending, err := cfg.Previews.Request(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, cfg.Logger)
		return preview.Result{}, false
	}

	res, err := pending.Wait(r.Context())
	if err != nil {
		cfg.Logger.Debug("preview client went away", "session_id", pending.SessionID, "error", err)
		return preview.Result{}, false
	}

	switch res.Outcome {
	case preview.Superseded:
		WriteError(w, http.StatusConflict, "superseded by a newer request", "SUPERSEDED")
		return res, false
	case preview.Failed:
		msg := "preview generation failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		WriteError(w, http.StatusInternalServerError, msg, "ENGINE_FAILURE")
		return res, false
	}
	return res, true
}
