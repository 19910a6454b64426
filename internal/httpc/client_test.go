package httpc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClientTimeout(t *testing.T) {
	if c := NewClient(0); c.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.Timeout, DefaultTimeout)
	}
	if c := NewClient(5 * time.Second); c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", c.Timeout)
	}
}

func TestClientTimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	resp, err := NewClient(50 * time.Millisecond).Get(server.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("Get() should time out")
	}
}

func TestTransportLimits(t *testing.T) {
	tr := NewTransport()
	if tr.TLSHandshakeTimeout == 0 || tr.IdleConnTimeout != DefaultIdleConnTimeout {
		t.Errorf("transport = %+v", tr)
	}
	if tr.Proxy == nil {
		t.Error("transport should honour proxy environment")
	}
}
