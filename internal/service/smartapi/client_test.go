package smartapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"SignalHub/internal/domain/models"
	"SignalHub/pkg/backoff"
	xhttp "SignalHub/pkg/http"
)

type fakeAuth struct {
	logins int32
	token  string
}

func (a *fakeAuth) Login(ctx context.Context) (string, error) {
	n := atomic.AddInt32(&a.logins, 1)
	return fmt.Sprintf("%s-%d", a.token, n), nil
}

func fastPolicy(attempts int) backoff.Policy {
	return backoff.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxAttempts: attempts}
}

func newTestClient(t *testing.T, url string, auth *fakeAuth) *Client {
	t.Helper()
	return NewClient(Options{
		BaseURL:      url,
		APIKey:       "key",
		Auth:         auth,
		HTTP:         xhttp.NewClient(xhttp.WithTimeout(2 * time.Second)),
		QuotePolicy:  fastPolicy(3),
		CandlePolicy: fastPolicy(4),
	})
}

func okQuotes() string {
	return `{"status":true,"message":"SUCCESS","data":{"fetched":[{"exchange":"NSE","symbolToken":"3045","ltp":812.5,"tradeVolume":1000,"totBuyQuan":200,"totSellQuan":50}],"unfetched":[]}}`
}

func TestFetchQuotesAuthRefreshOnce(t *testing.T) {
	auth := &fakeAuth{token: "jwt"}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer jwt-2" {
			t.Errorf("expected refreshed token on retry, got %q", got)
		}
		fmt.Fprint(w, okQuotes())
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, auth)
	res, err := c.FetchQuotes(context.Background(), map[string][]string{"NSE": {"3045"}})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Fetched) != 1 || res.Fetched[0].LTP != 812.5 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if atomic.LoadInt32(&auth.logins) != 2 {
		t.Fatalf("expected 2 logins (initial + refresh), got %d", auth.logins)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", calls)
	}
}

func TestFetchQuotesSecondAuthFailureSurfaces(t *testing.T) {
	auth := &fakeAuth{token: "jwt"}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, auth)
	_, err := c.FetchQuotes(context.Background(), map[string][]string{"NSE": {"3045"}})
	var verr *VendorError
	if !errors.As(err, &verr) {
		t.Fatalf("expected VendorError, got %v", err)
	}
	if verr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected surfaced 401, got %d", verr.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly 2 calls (original + one retry), got %d", calls)
	}
}

func TestFetchQuotesVendorAuthBodyTriggersRefresh(t *testing.T) {
	auth := &fakeAuth{token: "jwt"}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `{"status":false,"message":"Invalid Token","errorcode":"AG8001"}`)
			return
		}
		fmt.Fprint(w, okQuotes())
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, auth)
	if _, err := c.FetchQuotes(context.Background(), map[string][]string{"NSE": {"3045"}}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if atomic.LoadInt32(&auth.logins) != 2 {
		t.Fatalf("expected credential refresh, got %d logins", auth.logins)
	}
}

func TestFetchCandlesRetryExhaustion(t *testing.T) {
	auth := &fakeAuth{token: "jwt"}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, auth)
	_, err := c.FetchCandles(context.Background(), "NSE", "3045", models.TimeframeThirtyMin,
		time.Now().Add(-24*time.Hour), time.Now())
	var verr *VendorError
	if !errors.As(err, &verr) {
		t.Fatalf("expected VendorError, got %v", err)
	}
	if verr.Message != "FAILED" {
		t.Fatalf("expected FAILED, got %q", verr.Message)
	}
	if atomic.LoadInt32(&calls) != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
}

func TestFetchCandlesTransientVendorCodeThenSuccess(t *testing.T) {
	auth := &fakeAuth{token: "jwt"}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `{"status":false,"message":"Something Went Wrong, Please Try After Sometime","errorcode":"AB1004"}`)
			return
		}
		fmt.Fprint(w, `{"status":true,"data":[["2024-05-06T09:15:00+05:30",100,105,99,104,12345]]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, auth)
	candles, err := c.FetchCandles(context.Background(), "NSE", "3045", models.TimeframeThirtyMin,
		time.Now().Add(-24*time.Hour), time.Now())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(candles) != 1 || candles[0].Close != 104 || candles[0].Volume != 12345 {
		t.Fatalf("unexpected candles: %+v", candles)
	}
}

func TestFetchQuotesPermanent4xxNoRetry(t *testing.T) {
	auth := &fakeAuth{token: "jwt"}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":false,"message":"bad request","errorcode":"AB2001"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, auth)
	_, err := c.FetchQuotes(context.Background(), map[string][]string{"NSE": {"3045"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("permanent error must not retry, got %d calls", calls)
	}
}

func TestFetchQuotesRequestShape(t *testing.T) {
	auth := &fakeAuth{token: "jwt"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Mode           string              `json:"mode"`
			ExchangeTokens map[string][]string `json:"exchangeTokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Mode != "FULL" {
			t.Errorf("mode = %q", req.Mode)
		}
		if len(req.ExchangeTokens["NSE"]) != 2 {
			t.Errorf("tokens = %v", req.ExchangeTokens)
		}
		if r.Header.Get("X-PrivateKey") != "key" {
			t.Errorf("missing api key header")
		}
		fmt.Fprint(w, okQuotes())
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, auth)
	if _, err := c.FetchQuotes(context.Background(), map[string][]string{"NSE": {"3045", "1594"}}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
}

func TestParseCandlesSkipsMalformedRows(t *testing.T) {
	raw := json.RawMessage(`[["2024-05-06T09:15:00+05:30",1,2,0.5,1.5,10],["bogus",1,2,3,4,5],["2024-05-06T09:45:00+05:30",2,3,1.5,2.5,20]]`)
	candles, err := parseCandles(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 valid candles, got %d", len(candles))
	}
}
