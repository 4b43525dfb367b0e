package csv

import (
	"github.com/strata-etl/strata/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("csv", NewSource)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        "csv",
		Type:        "source",
		Description: "Delimited text file source with configurable delimiter",
		Version:     "1.0.0",
		Capabilities: []string{
			"streaming",
			"custom_delimiter",
			"schema_discovery",
		},
	})
}
