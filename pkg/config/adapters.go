package config

import (
	"fmt"
	"net/http"

	"github.com/marmos91/fsgate/pkg/adapter"
	"github.com/marmos91/fsgate/pkg/adapter/httpfs"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete fsgate configuration
//   - handler: The gateway request handler served by the HTTP adapter
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, handler http.Handler) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Gateway.HTTP.Enabled {
		if handler == nil {
			return nil, fmt.Errorf("HTTP adapter requires a handler")
		}
		adapters = append(adapters, httpfs.New(cfg.Gateway.HTTP, handler))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
