package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"templog-server/internal/modules/templog/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, threshold uint32) *IPAPIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewIPAPIProvider(IPAPIConfig{
		URL:              srv.URL,
		Timeout:          time.Second,
		RatePerMinute:    60000,
		FailureThreshold: threshold,
		OpenTimeout:      time.Minute,
	}, nil)
}

func TestIPAPIProvider_Success(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","lat":40.0,"lon":-105.0,"city":"Boulder"}`))
	}, 5)

	got, err := p.CurrentPosition(context.Background())
	if err != nil {
		t.Fatalf("CurrentPosition: %v", err)
	}
	want := types.Position{Latitude: 40.0, Longitude: -105.0}
	if got != want {
		t.Errorf("position = %+v; want %+v", got, want)
	}
}

func TestIPAPIProvider_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "fail status", status: http.StatusOK, body: `{"status":"fail","message":"reserved range"}`},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: ``},
		{name: "bad json", status: http.StatusOK, body: `{"status":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, 5)

			_, err := p.CurrentPosition(context.Background())
			if !errors.Is(err, ErrLocationUnavailable) {
				t.Fatalf("err = %v; want ErrLocationUnavailable", err)
			}
		})
	}
}

func TestIPAPIProvider_SingleAttempt(t *testing.T) {
	var hits atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, 5)

	if _, err := p.CurrentPosition(context.Background()); err == nil {
		t.Fatal("CurrentPosition = nil error; want error")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hit %d times; want 1", got)
	}
}

func TestIPAPIProvider_CircuitOpens(t *testing.T) {
	var hits atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 2)

	for i := 0; i < 4; i++ {
		if _, err := p.CurrentPosition(context.Background()); !errors.Is(err, ErrLocationUnavailable) {
			t.Fatalf("call %d: err = %v; want ErrLocationUnavailable", i+1, err)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream hit %d times; want 2 before the circuit opened", got)
	}
}

func TestIPAPIProvider_AbandonedCallsKeepCircuitClosed(t *testing.T) {
	var healthy atomic.Bool
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","lat":40.0,"lon":-105.0}`))
	}, 2)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := p.CurrentPosition(ctx)
		cancel()
		if !errors.Is(err, ErrLocationUnavailable) {
			t.Fatalf("call %d: err = %v; want ErrLocationUnavailable", i+1, err)
		}
	}

	healthy.Store(true)
	got, err := p.CurrentPosition(context.Background())
	if err != nil {
		t.Fatalf("CurrentPosition after abandoned calls: %v", err)
	}
	if got.Latitude != 40.0 || got.Longitude != -105.0 {
		t.Errorf("position = %+v; want (40, -105)", got)
	}
}

func TestIPAPIProvider_ContextCancelled(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.CurrentPosition(ctx); !errors.Is(err, ErrLocationUnavailable) {
		t.Fatalf("err = %v; want ErrLocationUnavailable", err)
	}
}

func TestStaticProvider(t *testing.T) {
	p, err := NewStaticProvider(40.0, -105.0)
	if err != nil {
		t.Fatalf("NewStaticProvider: %v", err)
	}
	got, err := p.CurrentPosition(context.Background())
	if err != nil {
		t.Fatalf("CurrentPosition: %v", err)
	}
	if got.Latitude != 40.0 || got.Longitude != -105.0 {
		t.Errorf("position = %+v; want (40, -105)", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.CurrentPosition(ctx); !errors.Is(err, ErrLocationUnavailable) {
		t.Errorf("cancelled ctx err = %v; want ErrLocationUnavailable", err)
	}

	if _, err := NewStaticProvider(100, 0); err == nil {
		t.Error("NewStaticProvider(100, 0) = nil error; want error")
	}
}
