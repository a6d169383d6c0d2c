// Package banklink pulls transactions from a linked bank account and books
// them through the same categorization path as imported files.
package banklink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

const (
	plaidDateLayout = "2006-01-02"
	plaidPageSize   = int32(500)
)

// Config holds Plaid API configuration.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
	AccessToken string
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: plaid client ID is required", common.ErrMissingConfig)
	}
	if c.Secret == "" {
		return fmt.Errorf("%w: plaid secret is required", common.ErrMissingConfig)
	}
	if c.Environment != "sandbox" && c.Environment != "production" {
		return fmt.Errorf("%w: plaid environment must be sandbox or production", common.ErrInvalidConfig)
	}
	return nil
}

// PlaidClient is the Plaid bank link provider.
type PlaidClient struct {
	client      *plaid.APIClient
	logger      *slog.Logger
	retryOpts   service.RetryOptions
	accessToken string
	environment string
}

// NewPlaidClient creates a Plaid client. The access token may be empty
// until Link has been completed.
func NewPlaidClient(cfg Config, logger *slog.Logger) (*PlaidClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}

	return &PlaidClient{
		client:      plaid.NewAPIClient(configuration),
		accessToken: cfg.AccessToken,
		environment: cfg.Environment,
		logger:      logger.With("component", "plaid"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// Name identifies the provider.
func (c *PlaidClient) Name() string {
	return "plaid"
}

// Transactions fetches every posted and pending transaction between start
// and end, inclusive, paging through the whole range.
func (c *PlaidClient) Transactions(ctx context.Context, start, end time.Time) ([]Line, error) {
	if c.accessToken == "" {
		return nil, fmt.Errorf("%w: plaid access token is required", common.ErrMissingConfig)
	}
	if start.After(end) {
		return nil, common.NewValidationError("dateRange", "start must not be after end")
	}

	c.logger.Info("fetching transactions from Plaid",
		"start_date", start.Format(plaidDateLayout),
		"end_date", end.Format(plaidDateLayout))

	var all []plaid.Transaction
	offset := int32(0)
	for {
		var page []plaid.Transaction
		err := common.WithRetry(ctx, func() error {
			request := plaid.NewTransactionsGetRequest(c.accessToken, start.Format(plaidDateLayout), end.Format(plaidDateLayout))
			request.SetOptions(plaid.TransactionsGetRequestOptions{
				Count:  plaid.PtrInt32(plaidPageSize),
				Offset: plaid.PtrInt32(offset),
			})

			resp, _, err := c.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
			if err != nil {
				return c.apiError("fetch transactions", err)
			}
			page = resp.GetTransactions()
			c.logger.Debug("fetched transaction page",
				"count", len(page),
				"offset", offset,
				"total", resp.GetTotalTransactions())
			return nil
		}, c.retryOpts)
		if err != nil {
			return nil, err
		}

		all = append(all, page...)
		if len(page) < int(plaidPageSize) {
			break
		}
		offset += plaidPageSize
	}

	lines := make([]Line, 0, len(all))
	for _, pt := range all {
		line, err := normalize(rawFromPlaid(pt))
		if err != nil {
			c.logger.Warn("skipping malformed Plaid transaction", "transaction_id", pt.GetTransactionId(), "error", err)
			continue
		}
		lines = append(lines, line)
	}
	c.logger.Info("fetched Plaid transactions", "count", len(lines))
	return lines, nil
}

// CreateLinkToken creates a Link token for Plaid Link initialization.
func (c *PlaidClient) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", &common.AuthorizationError{Resource: "bank link", Err: common.ErrUnauthenticated}
	}
	request := plaid.NewLinkTokenCreateRequest(
		"Zenny Books",
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US, plaid.COUNTRYCODE_CA},
		plaid.LinkTokenCreateRequestUser{ClientUserId: userID},
	)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})

	resp, _, err := c.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return "", c.apiError("create link token", err)
	}
	return resp.GetLinkToken(), nil
}

// ExchangePublicToken exchanges a public token from Link for an access
// token and item id.
func (c *PlaidClient) ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error) {
	if strings.TrimSpace(publicToken) == "" {
		return "", "", common.NewValidationError("publicToken", "is required")
	}
	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := c.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		return "", "", c.apiError("exchange public token", err)
	}
	return resp.GetAccessToken(), resp.GetItemId(), nil
}

// apiError converts a Plaid API failure into a provider error. Rate limits
// are marked retryable.
func (c *PlaidClient) apiError(op string, err error) error {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return common.NewProviderError("plaid", fmt.Errorf("%s: %w", op, err))
	}
	if plaidErr.ErrorCode == "RATE_LIMIT_EXCEEDED" {
		c.logger.Warn("Plaid rate limit hit, will retry", "error", plaidErr.ErrorMessage)
		return &common.RetryableError{Err: fmt.Errorf("%w: %s", common.ErrBankLinkRateLimit, plaidErr.ErrorMessage), Retryable: true}
	}
	return common.NewProviderError("plaid", fmt.Errorf("%s: %s - %s", op, plaidErr.ErrorCode, plaidErr.ErrorMessage))
}

// rawFromPlaid copies the fields the normalizer needs.
func rawFromPlaid(pt plaid.Transaction) rawTransaction {
	currency := pt.GetIsoCurrencyCode()
	if currency == "" {
		currency = pt.GetUnofficialCurrencyCode()
	}
	return rawTransaction{
		ID:           pt.GetTransactionId(),
		AccountID:    pt.GetAccountId(),
		Date:         pt.GetDate(),
		Name:         pt.GetName(),
		MerchantName: pt.GetMerchantName(),
		Amount:       pt.GetAmount(),
		Currency:     currency,
		Pending:      pt.GetPending(),
	}
}

type rawTransaction struct {
	ID           string
	AccountID    string
	Date         string
	Name         string
	MerchantName string
	Currency     string
	Amount       float64
	Pending      bool
}

// normalize maps a Plaid transaction onto a Line. Plaid reports money out
// as positive amounts; Line amounts are negative for money out.
func normalize(raw rawTransaction) (Line, error) {
	date, err := time.Parse(plaidDateLayout, raw.Date)
	if err != nil {
		return Line{}, fmt.Errorf("invalid date %q: %w", raw.Date, err)
	}

	merchant := raw.MerchantName
	if merchant == "" {
		merchant = raw.Name
	}

	return Line{
		ExternalID:   raw.ID,
		AccountID:    raw.AccountID,
		Date:         date,
		MerchantName: cleanMerchantName(merchant),
		Description:  strings.TrimSpace(raw.Name),
		Amount:       decimal.NewFromFloat(raw.Amount).Neg().Round(2),
		Currency:     strings.ToUpper(raw.Currency),
		Pending:      raw.Pending,
	}, nil
}

var merchantSuffixes = []string{" Llc", " Inc", " Corp", " Corporation", " Company", " Co", " Ltd", " Limited"}

// cleanMerchantName title-cases a merchant name and drops trailing
// transaction ids and corporate suffixes.
func cleanMerchantName(name string) string {
	words := strings.Fields(strings.ToLower(name))
	for i, word := range words {
		runes := []rune(word)
		for j := range runes {
			if j == 0 || !isLetter(runes[j-1]) {
				runes[j] = toUpper(runes[j])
			}
		}
		words[i] = string(runes)
	}

	// A long all-digit tail is a processor reference, not part of the name.
	if n := len(words); n > 1 && len(words[n-1]) > 5 && isAllDigits(words[n-1]) {
		words = words[:n-1]
	}
	name = strings.Join(words, " ")

	for changed := true; changed; {
		changed = false
		for _, suffix := range merchantSuffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSuffix(name, suffix)
				changed = true
			}
		}
	}
	return strings.TrimSpace(name)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 32
	}
	return r
}
