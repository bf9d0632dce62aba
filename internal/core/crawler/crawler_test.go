package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/formscout/formscout/internal/core"
)

const californiaPage = `<html><head><title>Standard Forms</title>
<script>var link = "RPA";</script></head>
<body>
  <ul>
    <li><a href="/forms/AVID.pdf">AVID - Agent Visual Inspection</a></li>
    <li><a href="javascript:void(0)">rpa (preview)</a></li>
    <li><a href="/forms/RPA.pdf">RPA - Residential Purchase Agreement</a></li>
    <li><a href="/forms/RPA-old.pdf">RPA - Residential Purchase Agreement (2019)</a></li>
  </ul>
</body></html>`

func testSource(baseURL string) core.FormSource {
	return core.FormSource{
		Organization:       "California Association of REALTORS®",
		BaseURL:            baseURL,
		SearchEndpoint:     "/legal/standard-forms/search",
		FormPatterns:       []string{"RPA"},
		VersionPattern:     regexp.MustCompile(`(\d+\.\d+\.\d+)|(\d{2}\/\d{2}\/\d{4})`),
		RateLimitPerMinute: 30,
	}
}

func testFetcher() *Fetcher {
	return NewFetcher("formscout/test (+forms lookup)", 2*time.Second, DefaultMaxRedirects)
}

func TestScrapeStrategyFindsFirstMatchingLink(t *testing.T) {
	var agent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.Header.Get("User-Agent"))
		require.Equal(t, "/legal/standard-forms/search", r.URL.Path)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(californiaPage))
	}))
	defer server.Close()

	strategy := &ScrapeStrategy{Fetcher: testFetcher()}
	result, err := strategy.Attempt(context.Background(), testSource(server.URL), "rpa")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, server.URL+"/forms/RPA.pdf", result.URL)
	require.Equal(t, core.StrategyScrape, result.Strategy)
	require.Equal(t, "California Association of REALTORS®", result.Source)
	require.Equal(t, "formscout/test (+forms lookup)", agent.Load())
}

func TestScrapeStrategyNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(californiaPage))
	}))
	defer server.Close()

	strategy := &ScrapeStrategy{Fetcher: testFetcher()}
	result, err := strategy.Attempt(context.Background(), testSource(server.URL), "TDS")
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestScrapeStrategyServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	strategy := &ScrapeStrategy{Fetcher: testFetcher()}
	result, err := strategy.Attempt(context.Background(), testSource(server.URL), "RPA")
	require.Error(t, err)
	require.Nil(t, result)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestScrapeStrategyTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	fetcher := NewFetcher("", 50*time.Millisecond, DefaultMaxRedirects)
	strategy := &ScrapeStrategy{Fetcher: fetcher}
	result, err := strategy.Attempt(context.Background(), testSource(server.URL), "RPA")
	require.Error(t, err)
	require.Nil(t, result)
}

func TestAPIStrategy(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, searchAPIPath, r.URL.Path)
		require.Equal(t, "RPA", r.URL.Query().Get("q"))
		require.Equal(t, "secret-key", r.URL.Query().Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"/docs/rpa-2024.pdf","version":" 6.24 "}`))
	}))
	defer server.Close()

	strategy := &APIStrategy{Fetcher: testFetcher()}

	t.Run("NoKeySkips", func(t *testing.T) {
		result, err := strategy.Attempt(context.Background(), testSource(server.URL), "RPA")
		require.NoError(t, err)
		require.Nil(t, result)
		require.Equal(t, int32(0), calls.Load())
	})

	t.Run("Found", func(t *testing.T) {
		source := testSource(server.URL)
		source.APIKey = "secret-key"
		result, err := strategy.Attempt(context.Background(), source, "RPA")
		require.NoError(t, err)
		require.NotNil(t, result)
		require.Equal(t, server.URL+"/docs/rpa-2024.pdf", result.URL)
		require.Equal(t, "6.24", result.Version)
		require.Equal(t, core.StrategyAPI, result.Strategy)
	})
}

func TestAPIStrategyErrorsHideKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	source := testSource(server.URL)
	source.APIKey = "secret-key"
	strategy := &APIStrategy{Fetcher: testFetcher()}
	_, err := strategy.Attempt(context.Background(), source, "RPA")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "secret-key")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestAPIStrategyEmptyURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"url":""}`))
	}))
	defer server.Close()

	source := testSource(server.URL)
	source.APIKey = "k"
	result, err := (&APIStrategy{Fetcher: testFetcher()}).Attempt(context.Background(), source, "RPA")
	require.NoError(t, err)
	require.Nil(t, result)
}

type denyLimiter struct{ asked []string }

func (d *denyLimiter) TryAcquire(org string) bool {
	d.asked = append(d.asked, org)
	return false
}

func TestProviderStrategy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/forms/library", r.URL.Path)
		_, _ = w.Write([]byte(`<a href="https://cdn.example.com/rpa.pdf">California RPA (zipForm)</a>`))
	}))
	defer server.Close()

	provider := core.FormSource{
		Organization:   core.ProviderZipLogix,
		BaseURL:        server.URL,
		SearchEndpoint: "/forms/library",
	}
	strategy := &ProviderStrategy{Provider: provider, Fetcher: testFetcher()}
	require.Equal(t, "provider:ziplogix", strategy.Name())

	t.Run("Found", func(t *testing.T) {
		result, err := strategy.Attempt(context.Background(), testSource("https://www.car.org"), "RPA")
		require.NoError(t, err)
		require.NotNil(t, result)
		require.Equal(t, "https://cdn.example.com/rpa.pdf", result.URL)
		require.Equal(t, core.ProviderZipLogix, result.Source)
		require.Equal(t, core.StrategyProvider, result.Strategy)
	})

	t.Run("SkipsItself", func(t *testing.T) {
		result, err := strategy.Attempt(context.Background(), provider, "RPA")
		require.NoError(t, err)
		require.Nil(t, result)
	})

	t.Run("BudgetExhausted", func(t *testing.T) {
		limiter := &denyLimiter{}
		limited := &ProviderStrategy{Provider: provider, Fetcher: testFetcher(), Limiter: limiter}
		result, err := limited.Attempt(context.Background(), testSource("https://www.car.org"), "RPA")
		require.Error(t, err)
		require.Nil(t, result)
		require.Equal(t, []string{core.ProviderZipLogix}, limiter.asked)
	})
}

func TestProviderStrategiesOrder(t *testing.T) {
	registry, err := core.NewRegistry(core.BuiltInSources()...)
	require.NoError(t, err)

	strategies := ProviderStrategies(registry, testFetcher(), nil)
	require.Len(t, strategies, 2)
	require.Equal(t, core.ProviderZipLogix, strategies[0].Provider.Organization)
	require.Equal(t, core.ProviderDotLoop, strategies[1].Provider.Organization)
}

func TestURLValidator(t *testing.T) {
	var methods atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/live.pdf", func(w http.ResponseWriter, r *http.Request) {
		methods.Store(r.Method)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/gone.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/moved.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/hop/"))
		require.NoError(t, err)
		if n == 0 {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, fmt.Sprintf("/hop/%d", n-1), http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	validator := &URLValidator{Fetcher: testFetcher()}
	ctx := context.Background()

	ok, err := validator.Validate(ctx, server.URL+"/live.pdf")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, http.MethodHead, methods.Load())

	ok, err = validator.Validate(ctx, server.URL+"/gone.pdf")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = validator.Validate(ctx, server.URL+"/moved.pdf")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = validator.Validate(ctx, server.URL+"/hop/5")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = validator.Validate(ctx, server.URL+"/hop/6")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTooManyRedirects)
	require.False(t, ok)
}

func TestVersionExtractor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/forms/RPA.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 RPA Rev. 12/23 RESIDENTIAL PURCHASE AGREEMENT"))
	})
	mux.HandleFunc("/forms/v2.1.0/AVID.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>AVID</h1></body></html>`))
	})
	mux.HandleFunc("/forms/TDS.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>TDS revised 07/01/2024</p><script>var v = "9.9.9";</script></body></html>`))
	})
	mux.HandleFunc("/forms/blank.pdf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	extractor := &VersionExtractor{Fetcher: testFetcher()}
	source := testSource(server.URL)
	ctx := context.Background()

	t.Run("RevisionStampFallback", func(t *testing.T) {
		info := extractor.Extract(ctx, source, server.URL+"/forms/RPA.pdf")
		require.NotNil(t, info)
		require.Equal(t, "12/23", info.Version)
		require.True(t, info.IsLatest)
		require.NotNil(t, info.ReleaseDate)
		require.Equal(t, 2023, info.ReleaseDate.Year())
		require.Equal(t, time.December, info.ReleaseDate.Month())
	})

	t.Run("PatternInURLPath", func(t *testing.T) {
		info := extractor.Extract(ctx, source, server.URL+"/forms/v2.1.0/AVID.html")
		require.NotNil(t, info)
		require.Equal(t, "2.1.0", info.Version)
		require.Nil(t, info.ReleaseDate)
	})

	t.Run("PatternInPageText", func(t *testing.T) {
		info := extractor.Extract(ctx, source, server.URL+"/forms/TDS.html")
		require.NotNil(t, info)
		require.Equal(t, "07/01/2024", info.Version)
		require.NotNil(t, info.ReleaseDate)
	})

	t.Run("NoMarker", func(t *testing.T) {
		require.Nil(t, extractor.Extract(ctx, source, server.URL+"/forms/blank.pdf"))
	})
}

func TestMatchVersion(t *testing.T) {
	texas := regexp.MustCompile(`TXR\s*(\d+)-(\d+)`)
	arizona := regexp.MustCompile(`Rev\.\s*(\d{2}\/\d{2})`)

	require.Equal(t, "1601", MatchVersion(texas, "Form TXR 1601-2 (effective)"))
	require.Equal(t, "04/24", MatchVersion(arizona, "SPDS Rev. 04/24"))
	require.Equal(t, "", MatchVersion(arizona, "no marker"))
	require.Equal(t, "", MatchVersion(nil, "Rev. 04/24"))
	require.Equal(t, "v3", MatchVersion(regexp.MustCompile(`v\d`), "form v3"))
}

func TestResolveHref(t *testing.T) {
	cases := []struct {
		href string
		want string
		ok   bool
	}{
		{"/forms/RPA.pdf", "https://www.car.org/forms/RPA.pdf", true},
		{"forms/RPA.pdf", "https://www.car.org/forms/RPA.pdf", true},
		{"https://cdn.car.org/RPA.pdf", "https://cdn.car.org/RPA.pdf", true},
		{"javascript:void(0)", "", false},
		{"mailto:forms@car.org", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.href, func(t *testing.T) {
			got, ok := ResolveHref("https://www.car.org", tc.href)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}
