// Package sources pulls in all source connectors so their init
// registration runs.
package sources

import (
	// Import all source connectors to trigger init() registration
	_ "github.com/strata-etl/strata/pkg/connector/sources/csv"
	_ "github.com/strata-etl/strata/pkg/connector/sources/json"
	_ "github.com/strata-etl/strata/pkg/connector/sources/parquet"
	_ "github.com/strata-etl/strata/pkg/connector/sources/postgresql"
)
