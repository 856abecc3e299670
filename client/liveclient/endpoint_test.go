package liveclient

import "testing"

func TestResolveEndpointOverrideWins(t *testing.T) {
	got := ResolveEndpoint(EndpointConfig{
		Override:   "wss://live.graho.in/live",
		APIBaseURL: "https://api.graho.in",
		Origin:     "https://graho.in",
	})
	if got != "wss://live.graho.in/live" {
		t.Errorf("ResolveEndpoint = %q, want the override", got)
	}
}

func TestResolveEndpointDerivesFromAPIBase(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.graho.in", "wss://api.graho.in/live"},
		{"http://localhost:3000", "ws://localhost:3000/live"},
		{"https://api.graho.in/v1/", "wss://api.graho.in/v1/live"},
	}

	for _, tc := range cases {
		got := ResolveEndpoint(EndpointConfig{APIBaseURL: tc.base})
		if got != tc.want {
			t.Errorf("ResolveEndpoint(api=%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

func TestResolveEndpointFallsBackToOrigin(t *testing.T) {
	got := ResolveEndpoint(EndpointConfig{Origin: "https://graho.in"})
	if got != "wss://graho.in/live" {
		t.Errorf("ResolveEndpoint = %q, want origin-derived address", got)
	}
}

func TestResolveEndpointDefault(t *testing.T) {
	if got := ResolveEndpoint(EndpointConfig{}); got != DefaultEndpoint {
		t.Errorf("ResolveEndpoint = %q, want %q", got, DefaultEndpoint)
	}
}

func TestResolveEndpointSkipsUnparseableAPIBase(t *testing.T) {
	got := ResolveEndpoint(EndpointConfig{
		APIBaseURL: "::not a url::",
		Origin:     "http://localhost:8080",
	})
	if got != "ws://localhost:8080/live" {
		t.Errorf("ResolveEndpoint = %q, want the origin strategy to take over", got)
	}
}
