package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"ratehub/internal/application"
	"ratehub/internal/domain"
	"ratehub/internal/infrastructure/httpx"
)

const (
	CoinGeckoID          domain.SourceID = "CoinGecko"
	DefaultCoinGeckoURL                  = "https://api.coingecko.com/api/v3"
	coinGeckoPricePath                   = "/simple/price"
	coinGeckoDemoKeyHead                 = "x-cg-demo-api-key"
)

// coinGeckoIDs maps currency codes to CoinGecko coin ids.
var coinGeckoIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
}

// CoinGecko quotes BTC, ETH and SOL against USD.
type CoinGecko struct {
	BaseURL string
	APIKey  string
	Client  *httpx.Client

	Coins []string
	Quote string
}

var _ application.SourceClient = (*CoinGecko)(nil)

func NewCoinGecko(baseURL, apiKey string, client *httpx.Client) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGecko{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  client,
		Coins:   []string{"BTC", "ETH", "SOL"},
		Quote:   "USD",
	}
}

func (c *CoinGecko) ID() domain.SourceID { return CoinGeckoID }

func (c *CoinGecko) Supports(p domain.PairKey) bool {
	if p.To != c.Quote {
		return false
	}
	for _, coin := range c.Coins {
		if coin == p.From {
			return true
		}
	}
	return false
}

func (c *CoinGecko) Fetch(ctx context.Context) (map[domain.PairKey]domain.Price, error) {
	ids := make([]string, 0, len(c.Coins))
	byID := make(map[string]string, len(c.Coins))
	for _, coin := range c.Coins {
		id, ok := coinGeckoIDs[coin]
		if !ok {
			continue
		}
		ids = append(ids, id)
		byID[id] = coin
	}

	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + coinGeckoPricePath)
	if err != nil {
		return nil, domain.SourceUnavailable(CoinGeckoID, "invalid base url", err)
	}
	vs := strings.ToLower(c.Quote)
	q := u.Query()
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", vs)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, domain.SourceUnavailable(CoinGeckoID, "create request", err)
	}
	if c.APIKey != "" {
		req.Header.Set(coinGeckoDemoKeyHead, c.APIKey)
	}

	var body map[string]map[string]json.RawMessage
	if err := c.Client.DoJSON(ctx, req, &body); err != nil {
		return nil, unavailable(CoinGeckoID, err, c.APIKey)
	}

	out := make(map[domain.PairKey]domain.Price, len(body))
	for id, quotes := range body {
		coin, ok := byID[id]
		if !ok {
			continue
		}
		p, ok := parsePrice(quotes[vs])
		if !ok {
			continue
		}
		out[domain.NewPairKey(coin, c.Quote)] = p
	}
	return out, nil
}
