package auth

import (
	"testing"

	"github.com/valyala/fasthttp"
)

func TestHMACSignature(t *testing.T) {
	keys := map[string]struct{}{"k1": {}, "k2": {}}
	sig := CreateHMACSignature("alice", "k2")
	if len(sig) != 64 {
		t.Fatalf("signature should be hex sha256, got %q", sig)
	}
	if !VerifyHMACSignature("alice", sig, keys) {
		t.Fatalf("signature from a configured key did not verify")
	}
	if VerifyHMACSignature("bob", sig, keys) {
		t.Fatalf("signature verified for another user")
	}
	if VerifyHMACSignature("alice", CreateHMACSignature("alice", "rogue"), keys) {
		t.Fatalf("signature from an unknown key verified")
	}
}

func TestLimiterPool(t *testing.T) {
	p := newLimiterPool(0.001, 1)
	defer p.Shutdown()
	if !p.Allow("a") {
		t.Fatalf("first request denied")
	}
	if p.Allow("a") {
		t.Fatalf("burst exceeded but allowed")
	}
	if !p.Allow("b") {
		t.Fatalf("keys should not share a bucket")
	}

	open := newLimiterPool(0, 0)
	for i := 0; i < 10; i++ {
		if !open.Allow("a") {
			t.Fatalf("a pool without a rate limited request %d", i)
		}
	}
	p.Shutdown()
}

func TestFrontendScope(t *testing.T) {
	cases := []struct {
		method, path string
		want         bool
	}{
		{"GET", "/v1/ws", true},
		{"GET", "/v1/unread", true},
		{"GET", "/v1/chats/bob/messages", true},
		{"POST", "/v1/messages/read", true},
		{"DELETE", "/v1/messages/m1", true},
		{"POST", "/v1/group-messages/read", true},
		{"GET", "/v1/groups/g1/messages", true},
		{"GET", "/v1/users", true},
		{"POST", "/v1/users", false},
		{"GET", "/v1/groups/g1", false},
		{"POST", "/v1/groups", false},
		{"POST", "/v1/_sign", false},
	}
	for _, tc := range cases {
		var ctx fasthttp.RequestCtx
		ctx.Request.Header.SetMethod(tc.method)
		ctx.Request.SetRequestURI(tc.path)
		if got := frontendAllowed(&ctx); got != tc.want {
			t.Fatalf("%s %s: allowed=%v, want %v", tc.method, tc.path, got, tc.want)
		}
	}
}
