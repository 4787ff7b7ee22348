package synthesis

import (
	"time"

	"github.com/smallbiznis/tryon/internal/config"
)

func testConfig(endpoint string) config.Config {
	return config.Config{Synthesis: config.SynthesisConfig{
		Endpoint:      endpoint,
		Timeout:       5 * time.Second,
		MaxImageBytes: 1 << 20,
	}}
}
