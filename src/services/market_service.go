package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/collectr/backend/src/config"
	"github.com/username/collectr/backend/src/logger"
	"github.com/username/collectr/backend/src/processors"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// --- API Response Structs ---

type ebaySearchResponse struct {
	ItemSummaries []struct {
		Title string `json:"title"`
		Price struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"price"`
		Condition  string `json:"condition"`
		ItemWebURL string `json:"itemWebUrl"`
	} `json:"itemSummaries"`
	Total int `json:"total"`
}

// --- Service Implementation ---

// ebayMarketService fetches sold-price samples from the eBay Browse API.
// The OAuth2 client-credentials token source caches and refreshes the access
// token internally, so the service is safe to share across concurrent batch
// refreshes without any extra locking.
type ebayMarketService struct {
	httpClient *http.Client
	searchURL  string
	limit      int
}

func NewMarketService() MarketDataProvider {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	base := &http.Client{
		Jar:     jar,
		Timeout: 20 * time.Second,
	}

	creds := clientcredentials.Config{
		ClientID:     config.Cfg.EbayClientID,
		ClientSecret: config.Cfg.EbayClientSecret,
		TokenURL:     config.Cfg.EbayTokenURL,
		Scopes:       []string{config.Cfg.EbayScope},
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &ebayMarketService{
		httpClient: creds.Client(ctx),
		searchURL:  config.Cfg.EbayBrowseURL,
		limit:      50,
	}
}

// FetchSoldPrices queries the Browse API for sale listings matching the
// variant and returns every sample carrying a usable price. An empty result
// is not an error; the caller decides what "no quote" means.
func (s *ebayMarketService) FetchSoldPrices(ctx context.Context, query SearchQuery) ([]processors.PriceSample, error) {
	keywords := buildKeywords(query)
	if keywords == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrProviderFailed)
	}

	params := url.Values{}
	params.Set("q", keywords)
	params.Set("limit", fmt.Sprintf("%d", s.limit))
	params.Set("sort", "price")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search returned status %d", ErrProviderFailed, resp.StatusCode)
	}

	var data ebaySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decoding search response: %v", ErrProviderFailed, err)
	}

	samples := make([]processors.PriceSample, 0, len(data.ItemSummaries))
	for _, item := range data.ItemSummaries {
		if item.Price.Value == "" {
			continue
		}
		price, err := decimal.NewFromString(item.Price.Value)
		if err != nil {
			logger.L.Debug("Skipping listing with unparseable price", "title", item.Title, "value", item.Price.Value)
			continue
		}
		samples = append(samples, processors.PriceSample{
			Title:     item.Title,
			Price:     price,
			Currency:  item.Price.Currency,
			Condition: item.Condition,
			URL:       item.ItemWebURL,
		})
	}
	return samples, nil
}

// buildKeywords assembles the provider search string from the variant's
// descriptive attributes, mirroring how listings are titled.
func buildKeywords(q SearchQuery) string {
	parts := []string{q.Name}
	if q.SetName != "" {
		parts = append(parts, q.SetName)
	}
	if q.CardNumber != "" {
		parts = append(parts, q.CardNumber)
	}
	if q.GradingCompany != "" && q.Grade != "" {
		parts = append(parts, q.GradingCompany, q.Grade)
	} else if q.GradingCompany != "" {
		parts = append(parts, q.GradingCompany)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
