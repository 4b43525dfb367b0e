package parquet

import (
	"github.com/strata-etl/strata/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("parquet", NewSource)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        "parquet",
		Type:        "source",
		Description: "Columnar file source with glob expansion and projection pushdown",
		Version:     "1.0.0",
		Capabilities: []string{
			"streaming",
			"multi_file",
			"projection_pushdown",
			"schema_discovery",
		},
	})
}
