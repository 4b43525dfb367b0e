package compressed

import (
	"github.com/strata-etl/strata/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSink("compressed", NewSink)

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        "compressed",
		Type:        "sink",
		Description: "Compression wrapper around file-based sinks",
		Version:     "1.0.0",
		Capabilities: []string{
			"gzip",
			"snappy",
			"s2",
			"lz4",
			"zstd",
			"deflate",
		},
	})
}
