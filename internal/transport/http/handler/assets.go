package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-events-sync/internal/domain"
	s3infra "github.com/go-events-sync/internal/infrastructure/s3"
)

// HeaderAssetVersion names the deployed shell version on every asset response.
const HeaderAssetVersion = "X-Asset-Version"

// AssetStore reads static shell files by request path.
type AssetStore interface {
	Get(ctx context.Context, name string) (*s3infra.Object, error)
}

// AssetHandler serves the static app shell.
type AssetHandler struct {
	store   AssetStore
	version string
	log     *slog.Logger
}

func NewAssetHandler(store AssetStore, version string, logger *slog.Logger) *AssetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetHandler{store: store, version: version, log: logger.With("component", "assets")}
}

func (h *AssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(HeaderAssetVersion, h.version)
	obj, err := h.store.Get(r.Context(), r.URL.Path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.log.Error("asset read failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "asset unavailable")
		return
	}
	defer obj.Body.Close()

	if obj.ETag != "" {
		w.Header().Set("ETag", obj.ETag)
		if r.Header.Get("If-None-Match") == obj.ETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.Header().Set("Content-Type", obj.ContentType)
	if obj.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.log.Warn("asset write interrupted", "path", r.URL.Path, "error", err)
	}
}
