package passthrough

import (
	"context"

	"catalogue-ingester/core/reconcile"
)

// Name is the handler name used in ingest.topics.
const Name = "copy"

// Handler emits every change to the output bucket as is.
type Handler struct{}

// NewHandler creates a Handler.
func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) OnUpdate(ctx context.Context, body []byte, path, source, target string) ([]reconcile.Action, error) {
	return []reconcile.Action{reconcile.ChangeEmit{Path: path, Body: body}}, nil
}

func (h *Handler) OnDelete(ctx context.Context, path, source, target string) ([]reconcile.Action, error) {
	return []reconcile.Action{reconcile.ChangeEmit{Path: path}}, nil
}
