package csv

import (
	"github.com/strata-etl/strata/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSink("csv", NewSink)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        "csv",
		Type:        "sink",
		Description: "Delimited text file sink with configurable delimiter",
		Version:     "1.0.0",
		Capabilities: []string{
			"streaming",
			"custom_delimiter",
		},
	})
}
