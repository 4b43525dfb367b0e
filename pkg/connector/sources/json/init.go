package json

import (
	"github.com/strata-etl/strata/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("json", NewSource)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        "json",
		Type:        "source",
		Description: "Line-delimited JSON file source with schema inference",
		Version:     "1.0.0",
		Capabilities: []string{
			"streaming",
			"json_lines",
			"schema_discovery",
		},
	})
}
