package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// FinanceClient fetches stock quotes from Alpha Vantage and crypto prices
// from CoinGecko.
type FinanceClient struct {
	alphaVantageURL string
	coinGeckoURL    string
	apiKey          string
	http            *http.Client
}

func NewFinanceClient(alphaVantageKey string) *FinanceClient {
	return &FinanceClient{
		alphaVantageURL: "https://www.alphavantage.co",
		coinGeckoURL:    "https://api.coingecko.com",
		apiKey:          alphaVantageKey,
		http:            newProviderHTTPClient(),
	}
}

type StockQuote struct {
	Symbol        string
	Price         string
	ChangePercent string
}

// StockQuote returns the latest quote for a symbol.
func (c *FinanceClient) StockQuote(ctx context.Context, symbol string) (*StockQuote, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", c.apiKey)
	var out struct {
		GlobalQuote struct {
			Symbol        string `json:"01. symbol"`
			Price         string `json:"05. price"`
			ChangePercent string `json:"10. change percent"`
		} `json:"Global Quote"`
	}
	if err := doJSON(ctx, c.http, http.MethodGet, c.alphaVantageURL+"/query?"+q.Encode(), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("stock quote %s: %w", symbol, err)
	}
	if out.GlobalQuote.Symbol == "" {
		return nil, fmt.Errorf("stock quote %s: no data", symbol)
	}
	return &StockQuote{
		Symbol:        out.GlobalQuote.Symbol,
		Price:         out.GlobalQuote.Price,
		ChangePercent: out.GlobalQuote.ChangePercent,
	}, nil
}

// CryptoPrice returns the USD price of a coin by CoinGecko ID ("bitcoin").
func (c *FinanceClient) CryptoPrice(ctx context.Context, coin string) (float64, error) {
	coin = strings.ToLower(coin)
	q := url.Values{}
	q.Set("ids", coin)
	q.Set("vs_currencies", "usd")
	out := map[string]map[string]float64{}
	if err := doJSON(ctx, c.http, http.MethodGet, c.coinGeckoURL+"/api/v3/simple/price?"+q.Encode(), nil, nil, &out); err != nil {
		return 0, fmt.Errorf("crypto price %s: %w", coin, err)
	}
	price, ok := out[coin]["usd"]
	if !ok {
		return 0, fmt.Errorf("crypto price %s: no data", coin)
	}
	return price, nil
}
