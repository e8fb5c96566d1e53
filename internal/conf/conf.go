package conf

import "time"

// Bootstrap is the root configuration of the service.
type Bootstrap struct {
	Server    *Server
	Data      *Data
	Log       *Log
	Transport *Transport
	Health    *Health
	History   *History
	Jobs      *Jobs
	Sources   *Sources
}

// Server holds listener settings for both transports.
type Server struct {
	Http *Server_HTTP
	Grpc *Server_GRPC
}

type Server_HTTP struct {
	Network string
	Addr    string
	Timeout time.Duration
}

type Server_GRPC struct {
	Network string
	Addr    string
	Timeout time.Duration
}

// Data holds storage connection settings.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

type Data_Database struct {
	Driver string
	Source string
}

type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Log configures pkg/log.NewZapLogger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// Transport configures the outbound HTTP client shared by all sources.
type Transport struct {
	ProxyURL  string
	UserAgent string
}

// Health configures the scraper health monitor.
type Health struct {
	// UnhealthyAfter is the consecutive-failure streak that marks a scraper unhealthy.
	UnhealthyAfter int
	// ResponseWindow is the number of response-time samples kept per scraper.
	ResponseWindow int
}

// History configures the durable rate history store.
type History struct {
	Retention       time.Duration
	WriteTimeout    time.Duration
	LatestTTL       time.Duration
	WindowCacheSize int
	WindowCacheTTL  time.Duration
}

// Jobs holds cron specs for background work.
type Jobs struct {
	RefreshSpec string
	PruneSpec   string
}

// Sources groups the per-provider scraper settings.
type Sources struct {
	BCV *BCV
	P2P *P2P
}

// Breaker mirrors scraper.BreakerConfig without the name.
type Breaker struct {
	FailureThreshold int
	Timeout          time.Duration
	SuccessThreshold int
}

// Source holds the settings every scraper shares.
type Source struct {
	URL           string
	Timeout       time.Duration
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent int
	SuccessTTL    time.Duration
	Breaker       *Breaker
}

// Range is an inclusive sanity range for a scraped price.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

type BCV struct {
	Source
	USD Range
	EUR Range
}

type P2P struct {
	Source
	Price     Range
	Asset     string
	Fiat      string
	Pages     int
	Rows      int
	PageDelay time.Duration
}
