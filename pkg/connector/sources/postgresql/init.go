package postgresql

import (
	"github.com/strata-etl/strata/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("postgresql", NewSource)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        "postgresql",
		Type:        "source",
		Description: "PostgreSQL table and query source built on pgx",
		Version:     "1.0.0",
		Capabilities: []string{
			"streaming",
			"custom_query",
			"schema_discovery",
		},
	})
}
