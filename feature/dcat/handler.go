package dcat

import (
	"context"
	"strings"

	"catalogue-ingester/core/failure"
	"catalogue-ingester/core/reconcile"

	"go.uber.org/zap"
)

const (
	// Name is the handler name used in ingest.topics.
	Name = "dcat"
	// DefaultPrefix is where descriptions are written in the output bucket.
	DefaultPrefix = "datasets"
)

const (
	turtleType = "text/turtle"
	jsonldType = "application/ld+json"
	stacExt    = ".json"
)

// Handler writes DCAT descriptions of STAC entries.
type Handler struct {
	prefix string
	log    *zap.Logger
}

// NewHandler creates a Handler writing under prefix (e.g. "datasets").
func NewHandler(prefix string, log *zap.Logger) *Handler {
	return &Handler{prefix: strings.Trim(prefix, "/"), log: log}
}

// keyRoot returns the output key without extension for a catalogue path.
// Only paths ending in .json are described, so two paths never share a root.
func (h *Handler) keyRoot(path string) (string, bool) {
	path = strings.TrimPrefix(path, "/")
	if !strings.HasSuffix(path, stacExt) {
		return "", false
	}
	path = strings.TrimSuffix(path, stacExt)
	if h.prefix == "" {
		return path, true
	}
	return h.prefix + "/" + path, true
}

// OnUpdate describes body if it is a STAC Catalog or Collection.
func (h *Handler) OnUpdate(ctx context.Context, body []byte, path, source, target string) ([]reconcile.Action, error) {
	root, ok := h.keyRoot(path)
	if !ok {
		h.log.Debug("Not a JSON document", zap.String("path", path))
		return nil, nil
	}

	d, err := Describe(body)
	if err != nil {
		return nil, err
	}
	if d == nil {
		h.log.Debug("Not a STAC catalog or collection", zap.String("path", path))
		return nil, nil
	}

	turtle, err := d.Turtle()
	if err != nil {
		return nil, failure.Validation("cannot serialize %s: %v", path, err)
	}
	jsonld, err := d.JSONLD()
	if err != nil {
		return nil, failure.Validation("cannot serialize %s: %v", path, err)
	}

	return []reconcile.Action{
		reconcile.StorageWrite{Key: root + ".ttl", Body: turtle, ContentType: turtleType},
		reconcile.StorageWrite{Key: root + ".jsonld", Body: jsonld, ContentType: jsonldType},
	}, nil
}

// OnDelete removes both descriptions.
func (h *Handler) OnDelete(ctx context.Context, path, source, target string) ([]reconcile.Action, error) {
	root, ok := h.keyRoot(path)
	if !ok {
		return nil, nil
	}
	return []reconcile.Action{
		reconcile.StorageDelete{Key: root + ".ttl"},
		reconcile.StorageDelete{Key: root + ".jsonld"},
	}, nil
}
