package config

import "time"

// Application constants
const (
	AppName    = "filterfinder"
	AppVersion = "1.0.0"

	// Websocket keepalive used when no WebSocketConfig is supplied
	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	// Report file names written per search
	ResultCSVFile      = "result.csv"
	LeaderboardCSVFile = "leaderboard.csv"
	ResultJSONFile     = "result.json"
	SummaryFile        = "summary.txt"
	WorkbookFile       = "result.xlsx"
)

// API endpoints
const (
	APIBasePath       = "/api/v1"
	SearchesEndpoint  = "/api/v1/searches"
	HealthEndpoint    = "/healthz"
	MetricsEndpoint   = "/metrics"
	WebSocketEndpoint = "/ws"
)
