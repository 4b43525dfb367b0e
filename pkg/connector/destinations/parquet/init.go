package parquet

import (
	"github.com/strata-etl/strata/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSink("parquet", NewSink)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        "parquet",
		Type:        "sink",
		Description: "Columnar file sink with configurable pages, blocks and compression",
		Version:     "1.0.0",
		Capabilities: []string{
			"streaming",
			"compression",
			"schema_validation",
		},
	})
}
