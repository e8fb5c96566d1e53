package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"RateLane/internal/conf"
	"RateLane/internal/model"
	"RateLane/pkg/scraper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bcvHomePage = `<!DOCTYPE html>
<html><body>
<div class="view-tipo-de-cambio-oficial-del-bcv">
  <div id="euro" class="col-sm-12 col-xs-12">
    <div class="field-content"><div class="row recuadrotsmc">
      <div class="col-sm-6 col-xs-6"><img src="/euro.png"> <span> EUR </span></div>
      <div class="col-sm-6 col-xs-6 centrado"><strong> 221,46830000 </strong></div>
    </div></div>
  </div>
  <div id="dolar" class="col-sm-12 col-xs-12">
    <div class="field-content"><div class="row recuadrotsmc">
      <div class="col-sm-6 col-xs-6"><img src="/usd.png"> <span> USD </span></div>
      <div class="col-sm-6 col-xs-6 centrado"><strong> 189,35420000 </strong></div>
    </div></div>
  </div>
  <div class="pull-right dinpro center">Fecha Valor:
    <span class="date-display-single" property="dc:date" content="2025-01-16T00:00:00-04:00">Jueves, 16 Enero  2025</span>
  </div>
</div>
</body></html>`

func testBCVConf(url string) *conf.BCV {
	return &conf.BCV{
		Source: conf.Source{URL: url},
		USD:    conf.Range{Min: 150, Max: 250},
		EUR:    conf.Range{Min: 180, Max: 280},
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"36,3995", 36.3995},
		{"1.234,56", 1234.56},
		{"1,234.56", 1234.56},
		{"36.40", 36.40},
		{" 189,35420000 ", 189.3542},
		{"", 0},
		{"n/a", 0},
		{"-5,00", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, parseRate(tt.in), 1e-9)
		})
	}
}

func TestBCVSource_Parse(t *testing.T) {
	src := newBCVSource(http.DefaultClient, testBCVConf(""))

	tests := []struct {
		name    string
		html    string
		wantUSD float64
		wantEUR float64
		date    string
	}{
		{
			name:    "container ids",
			html:    bcvHomePage,
			wantUSD: 189.3542,
			wantEUR: 221.4683,
			date:    "2025-01-16",
		},
		{
			name: "labelled spans",
			html: `<table><tr><td><span>USD</span></td><td><strong>190,10</strong></td></tr>
			       <tr><td><span>EUR</span></td><td><strong>222,20</strong></td></tr></table>`,
			wantUSD: 190.10,
			wantEUR: 222.20,
		},
		{
			name:    "raw markup fallback",
			html:    `<p>Tipo de cambio dólar <strong>191,00</strong> y euro <strong>223,50</strong></p>`,
			wantUSD: 191.00,
			wantEUR: 223.50,
		},
		{
			name:    "partial page",
			html:    `<div id="dolar"><strong>189,00</strong></div>`,
			wantUSD: 189.00,
		},
		{
			name: "nothing recognisable",
			html: `<html><body><p>Mantenimiento</p></body></html>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.Parse(tt.html)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantUSD, got.USD, 1e-9)
			assert.InDelta(t, tt.wantEUR, got.EUR, 1e-9)
			assert.Equal(t, tt.date, got.EffectiveDate)
		})
	}
}

func TestBCVSource_Parse_EmptyBody(t *testing.T) {
	src := newBCVSource(http.DefaultClient, testBCVConf(""))
	_, err := src.Parse("   ")
	var se *scraper.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, scraper.KindEmptyData, se.Kind)
}

func TestBCVSource_Validate(t *testing.T) {
	src := newBCVSource(http.DefaultClient, testBCVConf(""))

	tests := []struct {
		name string
		in   bcvParsed
		want scraper.ErrorKind
		ok   bool
	}{
		{"valid", bcvParsed{USD: 189, EUR: 221}, 0, true},
		{"missing both", bcvParsed{}, scraper.KindEmptyData, false},
		{"missing eur", bcvParsed{USD: 189}, scraper.KindEmptyData, false},
		{"usd too high", bcvParsed{USD: 3000, EUR: 221}, scraper.KindValidation, false},
		{"eur too low", bcvParsed{USD: 189, EUR: 50}, scraper.KindValidation, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := src.Validate(tt.in)
			if tt.ok {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Kind)
		})
	}
}

func TestBCVSource_Transform(t *testing.T) {
	src := newBCVSource(http.DefaultClient, testBCVConf(""))
	got := src.Transform(bcvParsed{USD: 189.3542, EUR: 221.4683, EffectiveDate: "2025-01-16"})
	assert.Equal(t, model.BCVRates{USD: 189.35, EUR: 221.47, EffectiveDate: "2025-01-16"}, got)
}

func TestBCVSource_Fetch(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Contains(t, r.Header.Get("Accept-Language"), "es-VE")
			_, _ = w.Write([]byte(bcvHomePage))
		}))
		defer srv.Close()

		body, err := newBCVSource(srv.Client(), testBCVConf(srv.URL)).Fetch(context.Background())
		require.NoError(t, err)
		assert.Contains(t, body, "dolar")
	})

	statuses := map[int]scraper.ErrorKind{
		http.StatusTooManyRequests:     scraper.KindRateLimited,
		http.StatusBadGateway:          scraper.KindUpstreamStatus,
		http.StatusForbidden:           scraper.KindConfig,
		http.StatusInternalServerError: scraper.KindUpstreamStatus,
	}
	for code, kind := range statuses {
		t.Run(http.StatusText(code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(code)
			}))
			defer srv.Close()

			_, err := newBCVSource(srv.Client(), testBCVConf(srv.URL)).Fetch(context.Background())
			var se *scraper.Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, kind, se.Kind)
			assert.Equal(t, code, se.StatusCode)
		})
	}

	t.Run("deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := newBCVSource(srv.Client(), testBCVConf(srv.URL)).Fetch(ctx)
		var se *scraper.Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, scraper.KindTimeout, se.Kind)
	})
}

func TestBCVScraper_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(bcvHomePage))
	}))
	defer srv.Close()

	sources := &conf.Sources{BCV: testBCVConf(srv.URL)}
	sources.BCV.Timeout = time.Second
	monitor := scraper.NewHealthMonitor()

	s, err := NewBCVScraper(sources, srv.Client(), monitor, nil)
	require.NoError(t, err)

	res := s.Scrape(context.Background())
	require.True(t, res.Success, res.ErrorMessage())
	assert.Equal(t, 189.35, res.Data.USD)
	assert.Equal(t, 221.47, res.Data.EUR)
	assert.Equal(t, "2025-01-16", res.Data.EffectiveDate)

	status := monitor.HealthStatus(SourceBCV)
	require.NotNil(t, status)
	assert.Equal(t, int64(1), status.TotalRequests)
}
