package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/users/me" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Access-Token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"iden":"u1","name":"Thom","email":"thom@example.com"}`))
	}))
	defer srv.Close()

	u, err := NewClient(srv.URL+"/v2/", "tok").Me(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Name != "Thom" || u.Email != "thom@example.com" {
		t.Errorf("got %+v", u)
	}

	_, err = NewClient(srv.URL+"/v2", "wrong").Me(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestClientHistory(t *testing.T) {
	since := time.Unix(1754883000, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("limit") != "5" || q.Get("modified_after") != "1754883000" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"pushes":[{"iden":"p1","type":"mirror","application_name":"Messages","title":"VietinBank","body":"hi","created":1754883180.25}]}`))
	}))
	defer srv.Close()

	pushes, err := NewClient(srv.URL, "tok").History(context.Background(), 5, since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pushes) != 1 || pushes[0].ApplicationName != "Messages" || pushes[0].Created != 1754883180.25 {
		t.Errorf("got %+v", pushes)
	}
}

func TestClientErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"invalid_request","message":"rate limited"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok").History(context.Background(), 5, time.Now())
	if err == nil || err.Error() != "pushbullet /pushes: rate limited" {
		t.Errorf("got %v", err)
	}
}

func TestProbeIdentity(t *testing.T) {
	res := ProbeIdentity(context.Background(), &fakeAPI{meErr: errors.New("offline")})
	if res.Success || res.Error != "offline" {
		t.Errorf("got %+v", res)
	}
}
