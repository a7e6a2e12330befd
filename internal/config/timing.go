package config

import "time"

// Timing knobs and fixed sizes used across the client.
const (
	// JobPollInterval is the fixed period between job status queries.
	JobPollInterval = 2 * time.Second

	// RequestTimeout bounds every call to the analysis service so a hung
	// transport ends the flow that issued it.
	RequestTimeout = 10 * time.Second

	// ReachabilityTimeout bounds the diagnostics round trip to the service.
	ReachabilityTimeout = 3 * time.Second

	// CredentialWatchDebounce coalesces bursts of credential file events
	// (temp file, remove, rename) into one change notification.
	CredentialWatchDebounce = 250 * time.Millisecond

	// LoginWaitTimeout is how long the CLI waits for the handshake to deliver a token.
	LoginWaitTimeout = 5 * time.Minute

	// ChannelHandshakeTimeout bounds websocket upgrades on the auth channel.
	ChannelHandshakeTimeout = 10 * time.Second

	// ChannelMaxMessageBytes caps one auth channel frame.
	ChannelMaxMessageBytes = 16 << 10

	// EventHistorySize caps the event history kept for the view.
	EventHistorySize = 1000
)

// Viewport of the secondary context opened for the login handshake.
const (
	LoginPopupWidth  = 500
	LoginPopupHeight = 600
)
