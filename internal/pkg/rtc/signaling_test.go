package rtc

import (
	"Parley/internal/api/config"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSDP(media ...string) string {
	lines := []string{
		"v=0",
		"o=- 4611731400430051336 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
	}
	for i, m := range media {
		pt := "111"
		codec := "opus/48000/2"
		if m == "video" {
			pt = "96"
			codec = "VP8/90000"
		}
		lines = append(lines,
			"m="+m+" 9 UDP/TLS/RTP/SAVPF "+pt,
			"c=IN IP4 0.0.0.0",
			"a=mid:"+string(rune('0'+i)),
			"a=sendrecv",
			"a=rtpmap:"+pt+" "+codec,
		)
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

func TestValidateSDP(t *testing.T) {
	audio := buildSDP("audio")
	av := buildSDP("audio", "video")

	require.NoError(t, ValidateSDP(webrtc.SDPTypeOffer, audio, false))
	require.NoError(t, ValidateSDP(webrtc.SDPTypeAnswer, av, true))

	assert.ErrorIs(t, ValidateSDP(webrtc.SDPTypeOffer, audio, true), ErrMissingMedia)
	assert.ErrorIs(t, ValidateSDP(webrtc.SDPTypeOffer, "", false), ErrMalformedSDP)
	assert.ErrorIs(t, ValidateSDP(webrtc.SDPTypeOffer, "hello world", false), ErrMalformedSDP)
}

func TestValidateCandidate(t *testing.T) {
	assert.NoError(t, ValidateCandidate(""))
	assert.NoError(t, ValidateCandidate("candidate:1 1 udp 2130706431 192.168.1.10 54321 typ host"))
	assert.ErrorIs(t, ValidateCandidate("candidate:garbage"), ErrMalformedCandidate)
}

func TestICEServers(t *testing.T) {
	servers := ICEServers(config.WebRTCConfig{ICEServers: []config.ICEServerConfig{
		{URLs: []string{"stun:stun.example.org:3478"}},
		{URLs: []string{"turn:turn.example.org:3478"}, Username: "u", Credential: "p"},
		{},
	}})
	require.Len(t, servers, 2)
	assert.Empty(t, servers[0].Credential)
	assert.EqualValues(t, "p", servers[1].Credential)
	assert.Equal(t, "u", servers[1].Username)
}
