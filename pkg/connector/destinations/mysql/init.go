package mysql

import (
	"github.com/strata-etl/strata/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSink("mysql", NewSink)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        "mysql",
		Type:        "sink",
		Description: "MySQL table sink with batched multi-row inserts",
		Version:     "1.0.0",
		Capabilities: []string{
			"batch",
			"transactions",
			"table_creation",
		},
	})
}
