package attestation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dashstreaming/gasoradar3/internal/attestation"
)

func TestVerify_EmptyToken(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	v := attestation.NewVerifier("secret", srv.URL, 10*time.Second)
	ok, msg := v.Verify(context.Background(), "", "1.2.3.4")
	if ok {
		t.Fatal("empty token unexpectedly accepted")
	}
	if msg != "attestation token required" {
		t.Fatalf("unexpected message %q", msg)
	}
	if called {
		t.Fatal("empty token must not trigger a network call")
	}
}

func TestVerify_BypassWithoutSecret(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	v := attestation.NewVerifier("", srv.URL, 10*time.Second)
	ok, msg := v.Verify(context.Background(), "any-token", "1.2.3.4")
	if !ok {
		t.Fatalf("bypass mode rejected a token: %s", msg)
	}
	if called {
		t.Fatal("bypass mode must not call the verify service")
	}
}

func TestVerify_SuccessfulVerification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("secret"); got != "top-secret" {
			t.Errorf("expected secret to be forwarded, got %q", got)
		}
		if got := r.PostForm.Get("response"); got != "tok-1" {
			t.Errorf("expected token to be forwarded, got %q", got)
		}
		if got := r.PostForm.Get("remoteip"); got != "1.2.3.4" {
			t.Errorf("expected remote ip to be forwarded, got %q", got)
		}
		w.Write([]byte(`{"success": true, "score": 0.9}`))
	}))
	defer srv.Close()

	v := attestation.NewVerifier("top-secret", srv.URL, 10*time.Second)
	ok, msg := v.Verify(context.Background(), "tok-1", "1.2.3.4")
	if !ok {
		t.Fatalf("valid token rejected: %s", msg)
	}
	if msg != "attestation verified" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestVerify_LowScoreRejectedDespiteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "score": 0.2}`))
	}))
	defer srv.Close()

	v := attestation.NewVerifier("secret", srv.URL, 10*time.Second)
	ok, msg := v.Verify(context.Background(), "tok-1", "")
	if ok {
		t.Fatal("low score unexpectedly accepted")
	}
	if msg != "attestation score too low" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestVerify_SuccessWithoutScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	v := attestation.NewVerifier("secret", srv.URL, 10*time.Second)
	if ok, msg := v.Verify(context.Background(), "tok-1", ""); !ok {
		t.Fatalf("token without score rejected: %s", msg)
	}
}

func TestVerify_ServiceReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error-codes": ["invalid-input-response"]}`))
	}))
	defer srv.Close()

	v := attestation.NewVerifier("secret", srv.URL, 10*time.Second)
	ok, msg := v.Verify(context.Background(), "bad-token", "")
	if ok {
		t.Fatal("failed verification unexpectedly accepted")
	}
	if msg != "attestation invalid" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestVerify_FailsClosed(t *testing.T) {
	t.Run("Non200Status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		v := attestation.NewVerifier("secret", srv.URL, 10*time.Second)
		ok, msg := v.Verify(context.Background(), "tok-1", "")
		if ok {
			t.Fatal("non-200 response unexpectedly accepted")
		}
		if msg != "could not verify attestation" {
			t.Fatalf("internal detail leaked: %q", msg)
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success": `))
		}))
		defer srv.Close()

		v := attestation.NewVerifier("secret", srv.URL, 10*time.Second)
		if ok, _ := v.Verify(context.Background(), "tok-1", ""); ok {
			t.Fatal("malformed response unexpectedly accepted")
		}
	})

	t.Run("TransportError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // refuse connections

		v := attestation.NewVerifier("secret", srv.URL, time.Second)
		ok, msg := v.Verify(context.Background(), "tok-1", "")
		if ok {
			t.Fatal("transport error unexpectedly accepted")
		}
		if msg != "could not verify attestation" {
			t.Fatalf("internal detail leaked: %q", msg)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer srv.Close()
		defer close(block)

		v := attestation.NewVerifier("secret", srv.URL, 10*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		ok, msg := v.Verify(ctx, "tok-1", "")
		if ok {
			t.Fatal("cancelled verification unexpectedly accepted")
		}
		if msg != "could not verify attestation" {
			t.Fatalf("unexpected message %q", msg)
		}
	})
}
