package version

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsNewer(t *testing.T) {
	cases := []struct {
		current, latest string
		want            bool
	}{
		{"0.1.0", "0.2.0", true},
		{"0.1.0", "0.1.0", false},
		{"0.2.0", "0.1.9", false},
		{"0.1.0", "1.0.0", true},
		{"0.1.0", "0.1.0.1", true},
		{"0.1.0", "", false},
		{"0.1.0", "0.1", false},
	}
	for _, tc := range cases {
		if got := IsNewer(tc.current, tc.latest); got != tc.want {
			t.Errorf("IsNewer(%q, %q) = %v, want %v", tc.current, tc.latest, got, tc.want)
		}
	}
}

func TestCheckForUpdates(t *testing.T) {
	serve := func(status int, body string) func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(body))
		}))
		prev := releaseURL
		releaseURL = srv.URL
		return func() {
			releaseURL = prev
			srv.Close()
		}
	}

	t.Run("newer release", func(t *testing.T) {
		defer serve(http.StatusOK, `{"tag_name":"v9.9.9"}`)()
		latest, err := CheckForUpdates()
		if err != nil {
			t.Fatalf("CheckForUpdates: %v", err)
		}
		if latest != "9.9.9" {
			t.Errorf("latest = %q", latest)
		}
	})

	t.Run("up to date", func(t *testing.T) {
		defer serve(http.StatusOK, `{"tag_name":"v`+Version+`"}`)()
		latest, err := CheckForUpdates()
		if err != nil || latest != "" {
			t.Errorf("latest = %q, err = %v", latest, err)
		}
	})

	t.Run("no releases yet", func(t *testing.T) {
		defer serve(http.StatusNotFound, "")()
		latest, err := CheckForUpdates()
		if err != nil || latest != "" {
			t.Errorf("latest = %q, err = %v", latest, err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		defer serve(http.StatusInternalServerError, "")()
		if _, err := CheckForUpdates(); err == nil {
			t.Error("expected an error for a 500 response")
		}
	})
}
