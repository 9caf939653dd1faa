package delivery

import (
	"fmt"
	"strings"
)

// Config holds configuration for message ingestion.
type Config struct {
	// Topics maps consumed topics to handler names: "topic=handler,...".
	Topics string `mapstructure:"topics" default:"transformed=dcat"`
	// Workers bounds how many keys of one batch are processed at once.
	Workers int `mapstructure:"workers" default:"4"`
	// PermanentFailurePolicy is abort or dead-letter.
	PermanentFailurePolicy string `mapstructure:"permanent_failure_policy" default:"abort"`
}

// Routes parses Topics into a topic to handler name map.
func (c Config) Routes() (map[string]string, error) {
	routes := make(map[string]string)
	for _, entry := range strings.Split(c.Topics, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		topic, handler, ok := strings.Cut(entry, "=")
		topic = strings.TrimSpace(topic)
		handler = strings.TrimSpace(handler)
		if !ok || topic == "" || handler == "" {
			return nil, fmt.Errorf("invalid topic route %q, expected topic=handler", entry)
		}
		if _, dup := routes[topic]; dup {
			return nil, fmt.Errorf("topic %q routed twice", topic)
		}
		routes[topic] = handler
	}

	if len(routes) == 0 {
		return nil, fmt.Errorf("no topics configured")
	}
	return routes, nil
}
