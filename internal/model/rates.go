// Package model holds the rate value types shared by the data and biz layers.
package model

import (
	"math"
	"time"
)

// BCVRates is the official Banco Central de Venezuela quote in VES.
type BCVRates struct {
	USD float64 `json:"usd"`
	EUR float64 `json:"eur"`
	// EffectiveDate is the "Fecha Valor" published with the rates, if any.
	EffectiveDate string `json:"effective_date,omitempty"`
}

// PriceStats summarises one side of the P2P order book.
type PriceStats struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// P2PRates is the Binance P2P USDT/VES market.
type P2PRates struct {
	// USDTVES is the general average used as the headline rate.
	USDTVES    float64    `json:"usdt_ves"`
	Sell       PriceStats `json:"sell"`
	Buy        PriceStats `json:"buy"`
	Spread     float64    `json:"spread"`
	SellOffers int        `json:"sell_offers"`
	BuyOffers  int        `json:"buy_offers"`
}

// HistoryEntry is one durable daily reading for a provider.
type HistoryEntry struct {
	Provider  string             `json:"provider"`
	Day       string             `json:"day"`
	Values    map[string]float64 `json:"values"`
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
}

// Direction of a trend.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

// Trend is the change of one rate key over one look-back period.
type Trend struct {
	Key           string    `json:"key"`
	Period        string    `json:"period"`
	Current       float64   `json:"current"`
	Previous      float64   `json:"previous"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Direction     Direction `json:"direction"`
}

// Trends maps period ("1d", "1w", "1m") to per-key trends.
type Trends map[string][]Trend

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Caracas is fixed at UTC-4; Venezuela has no DST.
var Caracas = time.FixedZone("VET", -4*3600)

// DayOf returns the Caracas calendar day of t as YYYY-MM-DD.
func DayOf(t time.Time) string {
	return t.In(Caracas).Format(time.DateOnly)
}
