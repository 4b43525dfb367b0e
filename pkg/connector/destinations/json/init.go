package json

import (
	"github.com/strata-etl/strata/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSink("json", NewSink)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        "json",
		Type:        "sink",
		Description: "Line-delimited JSON file sink",
		Version:     "1.0.0",
		Capabilities: []string{
			"streaming",
			"json_lines",
		},
	})
}
