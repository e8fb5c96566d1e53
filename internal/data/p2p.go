package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"RateLane/internal/conf"
	"RateLane/internal/model"
	"RateLane/pkg/scraper"

	"golang.org/x/sync/errgroup"
)

const (
	tradeBuy  = "BUY"
	tradeSell = "SELL"

	outlierFactor   = 2.5
	preserveRatio   = 0.1
	minPreserved    = 2
	minForFiltering = 5
)

type p2pSearchRequest struct {
	Page           int      `json:"page"`
	Rows           int      `json:"rows"`
	PayTypes       []string `json:"payTypes"`
	Countries      []string `json:"countries"`
	PublisherType  *string  `json:"publisherType"`
	Asset          string   `json:"asset"`
	Fiat           string   `json:"fiat"`
	TradeType      string   `json:"tradeType"`
	ProMerchantAds bool     `json:"proMerchantAds"`
}

type p2pSearchResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    []struct {
		Adv p2pAdvert `json:"adv"`
	} `json:"data"`
}

type p2pAdvert struct {
	AdvNo string `json:"advNo"`
	Price string `json:"price"`
}

// p2pBook is the raw payload of one fetch: adverts per trade side.
type p2pBook struct {
	Sell []p2pAdvert
	Buy  []p2pAdvert
}

type p2pOffer struct {
	AdvNo string
	Price float64
}

// p2pParsed holds the in-range, de-duplicated offers per side.
type p2pParsed struct {
	Sell []p2pOffer
	Buy  []p2pOffer
}

// p2pSource reads the Binance P2P advert search for one asset/fiat pair.
type p2pSource struct {
	client *http.Client
	cfg    *conf.P2P
}

func newP2PSource(client *http.Client, cfg *conf.P2P) *p2pSource {
	return &p2pSource{client: client, cfg: cfg}
}

// Fetch pulls both sides of the book concurrently.
func (s *p2pSource) Fetch(ctx context.Context) (p2pBook, error) {
	var book p2pBook
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ads, err := s.fetchSide(gctx, tradeSell)
		book.Sell = ads
		return err
	})
	g.Go(func() error {
		ads, err := s.fetchSide(gctx, tradeBuy)
		book.Buy = ads
		return err
	})
	if err := g.Wait(); err != nil {
		return p2pBook{}, err
	}
	return book, nil
}

// fetchSide walks the configured pages. A failure on the first page fails
// the side. Later failures keep what was already read, except rate limiting
// which always propagates.
func (s *p2pSource) fetchSide(ctx context.Context, tradeType string) ([]p2pAdvert, error) {
	pages := max(s.cfg.Pages, 1)
	var ads []p2pAdvert
	for page := 1; page <= pages; page++ {
		if page > 1 && s.cfg.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, scraper.Classify(ctx.Err())
			case <-time.After(s.cfg.PageDelay):
			}
		}

		pageAds, err := s.fetchPage(ctx, tradeType, page)
		if err != nil {
			se := scraper.Classify(err)
			if page == 1 || se.Kind == scraper.KindRateLimited || ctx.Err() != nil {
				return nil, se
			}
			break
		}
		ads = append(ads, pageAds...)
		if len(pageAds) < s.cfg.Rows {
			break
		}
	}
	return ads, nil
}

func (s *p2pSource) fetchPage(ctx context.Context, tradeType string, page int) ([]p2pAdvert, error) {
	body, err := json.Marshal(p2pSearchRequest{
		Page:      page,
		Rows:      s.cfg.Rows,
		PayTypes:  []string{},
		Countries: []string{},
		Asset:     s.cfg.Asset,
		Fiat:      s.cfg.Fiat,
		TradeType: tradeType,
	})
	if err != nil {
		return nil, scraper.Wrap(scraper.KindInternal, err, "encode P2P search")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, scraper.Wrap(scraper.KindConfig, err, "invalid P2P request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, scraper.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return nil, scraper.FromHTTPStatus(resp.StatusCode)
	}

	var out p2pSearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBytes)).Decode(&out); err != nil {
		return nil, scraper.Wrap(scraper.KindParse, err, fmt.Sprintf("decode P2P %s page %d", tradeType, page))
	}

	ads := make([]p2pAdvert, 0, len(out.Data))
	for _, d := range out.Data {
		ads = append(ads, d.Adv)
	}
	return ads, nil
}

func (s *p2pSource) Parse(raw p2pBook) (p2pParsed, error) {
	return p2pParsed{
		Sell: s.usableOffers(raw.Sell),
		Buy:  s.usableOffers(raw.Buy),
	}, nil
}

// usableOffers drops unparsable or out-of-range prices and repeated adverts.
func (s *p2pSource) usableOffers(ads []p2pAdvert) []p2pOffer {
	seen := make(map[string]struct{}, len(ads))
	offers := make([]p2pOffer, 0, len(ads))
	for _, ad := range ads {
		price, err := strconv.ParseFloat(ad.Price, 64)
		if err != nil || !s.cfg.Price.Contains(price) {
			continue
		}
		if ad.AdvNo != "" {
			if _, dup := seen[ad.AdvNo]; dup {
				continue
			}
			seen[ad.AdvNo] = struct{}{}
		}
		offers = append(offers, p2pOffer{AdvNo: ad.AdvNo, Price: price})
	}
	return offers
}

func (s *p2pSource) Validate(p p2pParsed) *scraper.Error {
	if len(p.Sell) == 0 && len(p.Buy) == 0 {
		return scraper.NewError(scraper.KindEmptyData,
			fmt.Sprintf("no %s/%s offers inside [%.2f, %.2f]", s.cfg.Asset, s.cfg.Fiat, s.cfg.Price.Min, s.cfg.Price.Max))
	}
	return nil
}

func (s *p2pSource) Transform(p p2pParsed) model.P2PRates {
	sell := filterOutliers(prices(p.Sell))
	buy := filterOutliers(prices(p.Buy))
	sellStats := statsOf(sell)
	buyStats := statsOf(buy)

	var general float64
	switch {
	case len(sell) > 0 && len(buy) > 0:
		general = (sellStats.Avg + buyStats.Avg) / 2
	case len(sell) > 0:
		general = sellStats.Avg
	default:
		general = buyStats.Avg
	}

	var spread float64
	if len(sell) > 0 && len(buy) > 0 {
		spread = math.Abs(sellStats.Avg - buyStats.Avg)
	}

	return model.P2PRates{
		USDTVES:    model.Round2(general),
		Sell:       sellStats,
		Buy:        buyStats,
		Spread:     model.Round2(spread),
		SellOffers: len(sell),
		BuyOffers:  len(buy),
	}
}

func prices(offers []p2pOffer) []float64 {
	out := make([]float64, len(offers))
	for i, o := range offers {
		out[i] = o.Price
	}
	return out
}

// filterOutliers applies an IQR fence to the middle of the sorted prices and
// always keeps the lowest and highest 10% (at least two each).
func filterOutliers(values []float64) []float64 {
	if len(values) < minForFiltering {
		return values
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	keep := max(minPreserved, int(float64(len(sorted))*preserveRatio))
	if 2*keep >= len(sorted) {
		return sorted
	}
	low, middle, high := sorted[:keep], sorted[keep:len(sorted)-keep], sorted[len(sorted)-keep:]
	if len(middle) < 3 {
		return sorted
	}

	q1 := middle[int(float64(len(middle))*0.25)]
	q3 := middle[int(float64(len(middle))*0.75)]
	iqr := q3 - q1
	lower, upper := q1-outlierFactor*iqr, q3+outlierFactor*iqr

	out := make([]float64, 0, len(sorted))
	out = append(out, low...)
	for _, v := range middle {
		if v >= lower && v <= upper {
			out = append(out, v)
		}
	}
	return append(out, high...)
}

func statsOf(values []float64) model.PriceStats {
	if len(values) == 0 {
		return model.PriceStats{}
	}
	lo, hi, sum := values[0], values[0], 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}
	return model.PriceStats{
		Min: model.Round2(lo),
		Avg: model.Round2(sum / float64(len(values))),
		Max: model.Round2(hi),
	}
}
