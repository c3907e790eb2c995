package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OWNER/escalator/internal/escalation"
)

// RoutesFileName is the named route definitions file under the data
// directory.
const RoutesFileName = "routes.json"

// LoadRoute resolves a named route from <dataDir>/routes.json. The
// route is what gets frozen into the escalation snapshot when a new
// alert group starts escalating.
func LoadRoute(dataDir, name string) (*escalation.Route, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, RoutesFileName))
	if err != nil {
		return nil, fmt.Errorf("reading routes: %w", err)
	}

	var routes map[string]escalation.Route
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, fmt.Errorf("parsing routes: %w", err)
	}

	route, ok := routes[name]
	if !ok {
		return nil, fmt.Errorf("route %q not found in %s", name, RoutesFileName)
	}
	return &route, nil
}
