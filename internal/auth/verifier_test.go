package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func hs256Token(secret, header, payload string) string {
	h := base64.RawURLEncoding.EncodeToString([]byte(header))
	p := base64.RawURLEncoding.EncodeToString([]byte(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(h + "." + p))
	return h + "." + p + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyDevToken(t *testing.T) {
	v := &Verifier{Mode: "dev"}
	pr, err := v.Verify("t1:admin")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if pr.Tenant != "t1" || pr.Role != "admin" {
		t.Fatalf("bad principal: %+v", pr)
	}
	if _, err := v.Verify("garbage"); err == nil {
		t.Fatalf("expected error for malformed dev token")
	}
}

func TestVerifyHS256(t *testing.T) {
	v := &Verifier{Mode: "hmac", HMACSecret: []byte("s3cret"), TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub"}
	tok := hs256Token("s3cret", `{"alg":"HS256","typ":"JWT"}`, `{"tenant":"t1","role":"Planner","sub":"u1"}`)
	pr, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if pr.Tenant != "t1" || pr.Role != "planner" || pr.Subject != "u1" {
		t.Fatalf("bad principal: %+v", pr)
	}
}

func TestVerifyHS256BadSignature(t *testing.T) {
	v := &Verifier{Mode: "hmac", HMACSecret: []byte("right"), TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub"}
	tok := hs256Token("wrong", `{"alg":"HS256"}`, `{"tenant":"t1"}`)
	if _, err := v.Verify(tok); err == nil {
		t.Fatalf("expected bad signature error")
	}
}

func TestVerifyMissingTenant(t *testing.T) {
	v := &Verifier{Mode: "hmac", HMACSecret: []byte("k"), TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub"}
	tok := hs256Token("k", `{"alg":"HS256"}`, `{"role":"admin"}`)
	if _, err := v.Verify(tok); err == nil {
		t.Fatalf("expected missing tenant error")
	}
}
