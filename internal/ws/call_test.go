package ws

import (
	"bytes"
	"encoding/json"
	"testing"
)

// 信令载荷必须逐位原样转发，中继不解析也不改写内容。
func TestRelayEnvelope_PayloadBitIdentical(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		field   string
	}{
		{"offer", `{"type":"offer","sdp":{"type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1"}}`, "sdp"},
		{"answer", `{"type":"answer","sdp":{"type":"answer","sdp":"v=0"}}`, "sdp"},
		{"ice candidate", `{"type":"ice_candidate","candidate":{"candidate":"candidate:1 1 UDP 2122252543 192.168.0.2 51809 typ host","sdpMLineIndex":0}}`, "candidate"},
		{"opaque signal", `{"type":"signal","signal":{"action":"mute","weird":[1,null,{"x":1.50}]}}`, "signal"},
		{"string payload", `{"type":"signal","signal":"raise-hand"}`, "signal"},
		{"null payload", `{"type":"offer"}`, "sdp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in signalInbound
			if err := json.Unmarshal([]byte(tt.inbound), &in); err != nil {
				t.Fatalf("unmarshal inbound: %v", err)
			}
			out, ok := relayEnvelope(in)
			if !ok {
				t.Fatal("relayEnvelope() rejected a valid kind")
			}

			var echoed map[string]json.RawMessage
			if err := json.Unmarshal(out, &echoed); err != nil {
				t.Fatalf("unmarshal outbound: %v", err)
			}
			var outType string
			if err := json.Unmarshal(echoed["type"], &outType); err != nil || outType != in.Type {
				t.Errorf("outbound type = %q, want %q", outType, in.Type)
			}

			var orig map[string]json.RawMessage
			if err := json.Unmarshal([]byte(tt.inbound), &orig); err != nil {
				t.Fatal(err)
			}
			want, had := orig[tt.field]
			got := echoed[tt.field]
			if !had {
				// 缺失的载荷字段以 null 转发
				if string(got) != "null" {
					t.Errorf("missing payload forwarded as %q, want null", got)
				}
				return
			}
			if !bytes.Equal(got, want) {
				t.Errorf("payload altered in relay:\n in: %s\nout: %s", want, got)
			}
		})
	}
}

func TestRelayEnvelope_UnknownKindDropped(t *testing.T) {
	for _, kind := range []string{"", "text", "hangup"} {
		if _, ok := relayEnvelope(signalInbound{Type: kind}); ok {
			t.Errorf("relayEnvelope(%q) accepted an unknown kind", kind)
		}
	}
}

func TestActiveUsersEnvelope(t *testing.T) {
	var env struct {
		Type  string `json:"type"`
		Users int    `json:"users"`
	}
	if err := json.Unmarshal(activeUsersEnvelope(2), &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "active_users" || env.Users != 2 {
		t.Errorf("activeUsersEnvelope(2) = %+v", env)
	}
}
