package config

// Default configuration values.
const (
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
	DefaultEventBufferSize      = 10000
	DefaultDesiredRateBps       = 1_000_000 // 1 Mbps
	DefaultKShortestPaths       = 5
	DefaultRerouteRatioTrigger  = 0.75
	DefaultRerouteRatioImprove  = 1.25
	DefaultRerouteCooldownTicks = 2
	DefaultActiveCountdownTicks = 2
	DefaultStatsIntervalSeconds = 5
	DefaultOraclePath           = "/mn_scripts/link_bandwidths.json"
	DefaultSouthboundDriver     = "external"
	DefaultAPIListen            = "0.0.0.0:8067"

	// MaxKShortestPaths bounds the path enumeration work per selection.
	MaxKShortestPaths = 64
)

// DesiredRateBytes converts the configured bits-per-second goal to the
// bytes-per-second scale the stores measure in.
func (c *Config) DesiredRateBytes() float64 {
	return c.Routing.DesiredRateBps / 8
}
