package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestVerifyDevToken(t *testing.T) {
	v := &Verifier{Mode: "dev"}
	p, err := v.Verify("t_demo:Admin")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Tenant != "t_demo" || p.Role != "admin" {
		t.Fatalf("principal: %+v", p)
	}
	if _, err := v.Verify("no-colon"); err == nil {
		t.Fatal("expected error for malformed dev token")
	}
}

func signHS256(t *testing.T, secret []byte, header, payload string) string {
	t.Helper()
	h := base64.RawURLEncoding.EncodeToString([]byte(header))
	pl := base64.RawURLEncoding.EncodeToString([]byte(payload))
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(h + "." + pl))
	return h + "." + pl + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyHMACToken(t *testing.T) {
	secret := []byte("shh")
	v := &Verifier{Mode: "hmac", HMACSecret: secret, TenantClaim: "tenant", RoleClaim: "role"}

	tok := signHS256(t, secret, `{"alg":"HS256","typ":"JWT"}`, `{"tenant":"t1","role":"Dispatcher"}`)
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Tenant != "t1" || p.Role != "dispatcher" {
		t.Fatalf("principal: %+v", p)
	}

	// wrong secret
	bad := signHS256(t, []byte("other"), `{"alg":"HS256"}`, `{"tenant":"t1","role":"admin"}`)
	if _, err := v.Verify(bad); err == nil {
		t.Fatal("expected bad signature error")
	}
	// missing tenant claim
	tok = signHS256(t, secret, `{"alg":"HS256"}`, `{"role":"admin"}`)
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected missing tenant error")
	}
}
