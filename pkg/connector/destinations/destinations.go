// Package destinations pulls in all sink connectors so their init
// registration runs.
package destinations

import (
	// Import all sink connectors to trigger init() registration
	_ "github.com/strata-etl/strata/pkg/connector/destinations/compressed"
	_ "github.com/strata-etl/strata/pkg/connector/destinations/csv"
	_ "github.com/strata-etl/strata/pkg/connector/destinations/json"
	_ "github.com/strata-etl/strata/pkg/connector/destinations/mysql"
	_ "github.com/strata-etl/strata/pkg/connector/destinations/parquet"
)
