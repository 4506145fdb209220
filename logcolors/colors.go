package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Green  = "\033[32m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	Yellow = "\033[33m"
	Red    = "\033[31m"
)

// Cache-related log prefixes
const (
	LogCacheInit = Blue + "[Cache:Init]" + Reset
	LogCache     = Blue + "[Cache]" + Reset
	LogCacheHit  = Green + "[Cache:Hit]" + Reset
	LogCacheMiss = Cyan + "[Cache:Miss]" + Reset
)

// Rate limiting log prefixes
const (
	LogRateLimit = Purple + "[RateLimit]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}

// Server/Init log prefixes
const (
	LogServer = Green + "[Server]" + Reset
	LogConfig = Cyan + "[Config]" + Reset
	LogStats  = Blue + "[Stats]" + Reset
	LogStatic = Blue + "[Static]" + Reset
)

// Proxy log prefixes
const (
	LogImageProxy = Purple + "[ImageProxy]" + Reset
	LogMetaProxy  = Purple + "[MetaProxy]" + Reset
	LogUpstream   = Cyan + "[Upstream]" + Reset
	LogFallback   = Cyan + "[Fallback]" + Reset
	LogArtUpgrade = Green + "[ArtUpgrade]" + Reset
	LogImagesList = Blue + "[ImagesList]" + Reset
	LogHealth     = Cyan + "[Health Check]" + Reset
	LogWarning    = Red + "[Warning]" + Reset
)

// Display-side log prefixes
const (
	LogPoller  = Green + "[Poller]" + Reset
	LogDisplay = Blue + "[Display]" + Reset
	LogStandby = Cyan + "[Standby]" + Reset
)
