package cmd

import (
	"fmt"
	"sort"

	"catalogue-ingester/core/reconcile"
	"catalogue-ingester/feature/dcat"
	"catalogue-ingester/feature/passthrough"

	"go.uber.org/zap"
)

// handlerFactories lists the handlers that can be bound to a topic.
var handlerFactories = map[string]func(log *zap.Logger) reconcile.Handler{
	dcat.Name: func(log *zap.Logger) reconcile.Handler {
		return dcat.NewHandler(dcat.DefaultPrefix, log)
	},
	passthrough.Name: func(log *zap.Logger) reconcile.Handler {
		return passthrough.NewHandler()
	},
}

// newHandler creates the handler registered under name.
func newHandler(name string, log *zap.Logger) (reconcile.Handler, error) {
	factory, ok := handlerFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown handler %q (available: %v)", name, handlerNames())
	}
	return factory(log.With(zap.String("handler", name))), nil
}

func handlerNames() []string {
	names := make([]string, 0, len(handlerFactories))
	for name := range handlerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
