// Package constants defines Twitch API endpoints, client identifiers,
// GQL operation hashes, user-agent strings, pub-sub topic limits, and
// default timeout/interval values used throughout the miner.
package constants

import "time"

const (
	// TwitchURL is the base Twitch web URL.
	TwitchURL = "https://www.twitch.tv"
	// IRCURL is the Twitch IRC chat server hostname.
	IRCURL = "irc.chat.twitch.tv"
	// IRCPortTLS is the TLS-encrypted IRC port.
	IRCPortTLS = 6697
	// PubSubURL is the Twitch PubSub WebSocket endpoint.
	PubSubURL = "wss://pubsub-edge.twitch.tv/v1"
	// GQLURL is the Twitch GraphQL API endpoint.
	GQLURL = "https://gql.twitch.tv/gql"
	// DeviceCodeURL is the Twitch OAuth2 device code endpoint.
	DeviceCodeURL = "https://id.twitch.tv/oauth2/device"
	// TokenURL is the Twitch OAuth2 token endpoint.
	TokenURL = "https://id.twitch.tv/oauth2/token"
	// ValidateURL is the Twitch OAuth2 token validation endpoint.
	ValidateURL = "https://id.twitch.tv/oauth2/validate"
	// ActivateURL is the page the user visits to enter the device code.
	ActivateURL = "https://www.twitch.tv/activate"
)

const (
	// ClientIDAndroid is the Twitch client ID for the Android app. The
	// device code flow only works with first-party app client IDs.
	ClientIDAndroid = "kd1unb4b3q4t58fwlpcbzcbnm76a8fp"
	// ClientIDBrowser is the Twitch client ID for browser clients.
	ClientIDBrowser = "kimne78kx3ncx6brgo4mv6wki5h1ko"

	// DropsTagID identifies streams with Drops enabled.
	DropsTagID = "c2542d6d-cd10-4532-919b-3d19f30a768b"
)

// AndroidUserAgent matches the client ID the miner authenticates as.
const AndroidUserAgent = "Dalvik/2.1.0 (Linux; U; Android 7.1.2; SM-G977N Build/LMY48Z) tv.twitch.android.app/14.3.2/1403020"

// BrowserUserAgent is used for page scraping, where an app agent would get a
// mobile redirect.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const (
	// MaxTopicsPerConn is the per-connection pub-sub topic limit imposed by
	// the platform.
	MaxTopicsPerConn = 50
	// MaxPubSubConns caps the pub-sub connection pool.
	MaxPubSubConns = 8
	// MaxChannels caps how many channels the miner tracks at once. Two
	// topics per channel plus two user topics must fit in the pool.
	MaxChannels = 199
	// MaxGQLBatch is the largest number of operations in one GQL request.
	MaxGQLBatch = 16
	// CampaignDetailsChunk is how many campaign detail queries go into one
	// batched fetch round.
	CampaignDetailsChunk = 20
	// GameDirectoryLimit is the page size for directory channel discovery.
	GameDirectoryLimit = 30
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 15 * time.Second
	// PubSubPingInterval is the base interval between pub-sub PING frames.
	PubSubPingInterval = 4 * time.Minute
	// PubSubPingJitter is the maximum random offset applied per PING.
	PubSubPingJitter = 30 * time.Second
	// PubSubPongTimeout is the deadline for a PONG after a PING.
	PubSubPongTimeout = 10 * time.Second
	// WatchIntervalBase divided by the connection quality gives the
	// interval between minute-watched events.
	WatchIntervalBase = 20 * time.Second
	// OnlineDelay is how long a stream-up signal must hold before the
	// channel is considered online.
	OnlineDelay = 120 * time.Second
	// ClaimFollowupDelay is the pause before polling for the next drop
	// after a claim.
	ClaimFollowupDelay = 4 * time.Second
	// ClaimPollInterval spaces the post-claim polls.
	ClaimPollInterval = 2 * time.Second
	// ClaimPollAttempts bounds the post-claim polling.
	ClaimPollAttempts = 8
	// PostClaimDebounce suppresses stale progress messages that race the
	// claim confirmation.
	PostClaimDebounce = 500 * time.Millisecond
	// DefaultGracefulShutdownTimeout is the timeout for graceful HTTP
	// server shutdown.
	DefaultGracefulShutdownTimeout = 5 * time.Second
)

const (
	// BackoffBase is the first reconnect/retry delay.
	BackoffBase = 1 * time.Second
	// BackoffCap bounds the exponential delay growth.
	BackoffCap = 60 * time.Second
	// BackoffJitter is the relative jitter applied to every delay.
	BackoffJitter = 0.2

	// GQLRateLimit and GQLRateBurst shape the GraphQL token bucket.
	GQLRateLimit = 20
	GQLRateBurst = 40
	// HTTPRateLimit and HTTPRateBurst shape the plain HTTP token bucket.
	HTTPRateLimit = 10
	HTTPRateBurst = 20
)

// GQLOperation represents a persisted GQL query with its operation name and
// SHA256 hash. Operations with a Query string are sent as full queries.
type GQLOperation struct {
	OperationName string
	SHA256Hash    string
	Query         string
}

// Persisted GQL operations the miner uses.
var (
	// GQLGetStreamInfo returns stream information for a channel.
	GQLGetStreamInfo = GQLOperation{
		OperationName: "VideoPlayerStreamInfoOverlayChannel",
		SHA256Hash:    "198492e0857f6aedead9665c81c5a06d67b25b58034649687124083ff288597d",
	}
	// GQLClaimDrop claims a completed drop by instance ID.
	GQLClaimDrop = GQLOperation{
		OperationName: "DropsPage_ClaimDropRewards",
		SHA256Hash:    "a455deea71bdc9015b78eb49f4acfbce8baa7ccbedd28e549bb025bd0f751930",
	}
	// GQLInventory returns all in-progress campaigns.
	GQLInventory = GQLOperation{
		OperationName: "Inventory",
		SHA256Hash:    "d86775d0ef16a63a33ad52e80eaff963b2d5b72fada7c991504a57496e1d8e4b",
	}
	// GQLCurrentDrop returns the drop currently progressing on a channel.
	GQLCurrentDrop = GQLOperation{
		OperationName: "DropCurrentSessionContext",
		SHA256Hash:    "4d06b702d25d652afb9ef835d2a550031f1cf762b193523a92166f40ea3d142b",
	}
	// GQLCampaigns returns the campaign dashboard list.
	GQLCampaigns = GQLOperation{
		OperationName: "ViewerDropsDashboard",
		SHA256Hash:    "5a4da2ab3d5b47c9f9ce864e727b2cb346af1e3ea8b897fe8f704a97ff017619",
	}
	// GQLCampaignDetails returns extended information about one campaign.
	GQLCampaignDetails = GQLOperation{
		OperationName: "DropCampaignDetails",
		SHA256Hash:    "039277bf98f3130929262cc7c6efd9c141ca3749cb6dca442fc8ead9a53f77c1",
	}
	// GQLAvailableDrops returns drops available on a particular channel.
	GQLAvailableDrops = GQLOperation{
		OperationName: "DropsHighlightService_AvailableDrops",
		SHA256Hash:    "9a62a09bce5b53e26e64a671e530bc599cb6aab1e5ba3cbd5d85966d3940716f",
	}
	// GQLPlaybackAccessToken returns a stream playback access token.
	GQLPlaybackAccessToken = GQLOperation{
		OperationName: "PlaybackAccessToken",
		SHA256Hash:    "ed230aa1e33e07eebb8928504583da78a5173989fadfb1ac94be06a04f3cdbe9",
	}
	// GQLGameDirectory returns live channels for a game.
	GQLGameDirectory = GQLOperation{
		OperationName: "DirectoryPage_Game",
		SHA256Hash:    "98a996c3c3ebb1ba4fd65d6671c6028d7ee8d615cb540b0731b3db2a911d3649",
	}
	// GQLSlugRedirect turns a game name into a directory slug.
	GQLSlugRedirect = GQLOperation{
		OperationName: "DirectoryGameRedirect",
		SHA256Hash:    "1f0300090caceec51f33c5e20647aceff9017f740f223c3c532ba6fa59f6b6cc",
	}
	// GQLNotificationsDelete deletes an on-site notification.
	GQLNotificationsDelete = GQLOperation{
		OperationName: "OnsiteNotifications_DeleteNotification",
		SHA256Hash:    "13d463c831f28ffe17dccf55b3148ed8b3edbbd0ebadd56352f1ff0160616816",
	}
)

// AllGQLOperations returns a slice of all defined GQL operations for iteration.
func AllGQLOperations() []GQLOperation {
	return []GQLOperation{
		GQLGetStreamInfo,
		GQLClaimDrop,
		GQLInventory,
		GQLCurrentDrop,
		GQLCampaigns,
		GQLCampaignDetails,
		GQLAvailableDrops,
		GQLPlaybackAccessToken,
		GQLGameDirectory,
		GQLSlugRedirect,
		GQLNotificationsDelete,
	}
}
