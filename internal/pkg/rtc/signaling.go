package rtc

import (
	"Parley/internal/api/config"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

var (
	ErrMalformedSDP       = errors.New("malformed session description")
	ErrMissingMedia       = errors.New("session description lacks required media")
	ErrMalformedCandidate = errors.New("malformed ice candidate")
)

// ParseSDP 按 offer/answer 解析 SDP
func ParseSDP(t webrtc.SDPType, raw string) (*sdp.SessionDescription, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedSDP)
	}
	desc := webrtc.SessionDescription{Type: t, SDP: raw}
	parsed, err := desc.Unmarshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSDP, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return nil, fmt.Errorf("%w: no media sections", ErrMissingMedia)
	}
	return parsed, nil
}

// ValidateSDP 视频通话要求至少一个 video 段，音频通话要求 audio 段
func ValidateSDP(t webrtc.SDPType, raw string, video bool) error {
	parsed, err := ParseSDP(t, raw)
	if err != nil {
		return err
	}
	want := "audio"
	if video {
		want = "video"
	}
	if !HasMedia(parsed, want) {
		return fmt.Errorf("%w: %s", ErrMissingMedia, want)
	}
	return nil
}

// HasMedia 是否包含指定类型且端口非 0 的媒体段
func HasMedia(sd *sdp.SessionDescription, media string) bool {
	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media == media && md.MediaName.Port.Value != 0 {
			return true
		}
	}
	return false
}

// ValidateCandidate 空串为 end-of-candidates
func ValidateCandidate(raw string) error {
	if raw == "" {
		return nil
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(raw, "candidate:")); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCandidate, err)
	}
	return nil
}

// ICEServers 下发给客户端的 STUN/TURN 配置
func ICEServers(cfg config.WebRTCConfig) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return servers
}
