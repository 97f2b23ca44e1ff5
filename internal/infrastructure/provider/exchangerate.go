package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"ratehub/internal/application"
	"ratehub/internal/domain"
	"ratehub/internal/infrastructure/httpx"
)

const (
	ExchangeRateID         domain.SourceID = "ExchangeRate-API"
	DefaultExchangeRateURL                 = "https://v6.exchangerate-api.com/v6"
)

// ExchangeRate quotes fiat currencies against USD. The API answers with
// USD->X conversion rates; only X->USD is kept, computed by inversion.
type ExchangeRate struct {
	BaseURL string
	APIKey  string
	Client  *httpx.Client

	Base       string
	Currencies []string
}

var _ application.SourceClient = (*ExchangeRate)(nil)

func NewExchangeRate(baseURL, apiKey string, client *httpx.Client) *ExchangeRate {
	if baseURL == "" {
		baseURL = DefaultExchangeRateURL
	}
	return &ExchangeRate{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Client:     client,
		Base:       "USD",
		Currencies: []string{"EUR", "GBP", "RUB"},
	}
}

type xrLatestResp struct {
	Result          string                     `json:"result"`
	ErrorType       string                     `json:"error-type"`
	BaseCode        string                     `json:"base_code"`
	ConversionRates map[string]json.RawMessage `json:"conversion_rates"`
}

func (p *ExchangeRate) ID() domain.SourceID { return ExchangeRateID }

func (p *ExchangeRate) Supports(pair domain.PairKey) bool {
	if pair.To != p.Base {
		return false
	}
	for _, c := range p.Currencies {
		if c == pair.From {
			return true
		}
	}
	return false
}

func (p *ExchangeRate) Fetch(ctx context.Context) (map[domain.PairKey]domain.Price, error) {
	if p.APIKey == "" {
		return nil, domain.SourceUnavailable(ExchangeRateID, "missing api key", nil)
	}

	u := fmt.Sprintf("%s/%s/latest/%s", strings.TrimRight(p.BaseURL, "/"), p.APIKey, p.Base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.SourceUnavailable(ExchangeRateID, "create request", redact(err, p.APIKey))
	}

	var body xrLatestResp
	if err := p.Client.DoJSON(ctx, req, &body); err != nil {
		return nil, unavailable(ExchangeRateID, err, p.APIKey)
	}
	if body.Result != "success" {
		reason := body.ErrorType
		if reason == "" {
			reason = "unsuccessful response"
		}
		return nil, domain.SourceUnavailable(ExchangeRateID, reason, nil)
	}

	out := make(map[domain.PairKey]domain.Price, len(p.Currencies))
	for _, c := range p.Currencies {
		fwd, ok := parsePrice(body.ConversionRates[c])
		if !ok {
			continue
		}
		inv, err := domain.Invert(fwd)
		if err != nil {
			continue
		}
		out[domain.NewPairKey(c, p.Base)] = inv
	}
	return out, nil
}
