package liveclient

import (
	"net/url"
	"strings"
)

// DefaultEndpoint is the last-resort local development address.
const DefaultEndpoint = "ws://localhost:8080/live"

// EndpointConfig feeds the ordered resolution strategies.
type EndpointConfig struct {
	// Override wins outright when set.
	Override string
	// APIBaseURL derives the live endpoint from the sibling REST API
	// address, e.g. https://api.graho.in -> wss://api.graho.in/live.
	APIBaseURL string
	// Origin is a same-origin hint, e.g. the address the embedding
	// application itself is served from.
	Origin string
}

type endpointStrategy func(EndpointConfig) (string, bool)

var endpointStrategies = []endpointStrategy{
	endpointFromOverride,
	endpointFromAPIBase,
	endpointFromOrigin,
}

// ResolveEndpoint tries each strategy in order and falls back to the
// hardcoded local default.
func ResolveEndpoint(cfg EndpointConfig) string {
	for _, strategy := range endpointStrategies {
		if endpoint, ok := strategy(cfg); ok {
			return endpoint
		}
	}
	return DefaultEndpoint
}

func endpointFromOverride(cfg EndpointConfig) (string, bool) {
	if cfg.Override == "" {
		return "", false
	}
	return cfg.Override, true
}

func endpointFromAPIBase(cfg EndpointConfig) (string, bool) {
	if cfg.APIBaseURL == "" {
		return "", false
	}
	return deriveWebsocketURL(cfg.APIBaseURL)
}

func endpointFromOrigin(cfg EndpointConfig) (string, bool) {
	if cfg.Origin == "" {
		return "", false
	}
	return deriveWebsocketURL(cfg.Origin)
}

func deriveWebsocketURL(base string) (string, bool) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", false
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", false
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/live"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), true
}
