package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAppSheetURL is the AppSheet API v2 base.
const DefaultAppSheetURL = "https://api.appsheet.com/api/v2"

// DefaultAppSheetTable is the table rows are added to.
const DefaultAppSheetTable = "Table 1"

// AppSheetClient adds rows to an AppSheet table through the Action endpoint.
type AppSheetClient struct {
	actionURL string
	accessKey string
	locale    string
	timeZone  string
	req       *requester
}

// AppSheetConfig holds connection settings. Empty Locale and TimeZone default to
// en-US and Indian/Mauritius.
type AppSheetConfig struct {
	BaseURL   string
	AppID     string
	Table     string
	AccessKey string
	Locale    string
	TimeZone  string
	Timeout   time.Duration
}

// NewAppSheetClient validates cfg and returns a client. Adds are never retried.
func NewAppSheetClient(cfg AppSheetConfig) (*AppSheetClient, error) {
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("%w: appsheet access key is required", ErrInvalidAPIKey)
	}
	if cfg.AppID == "" {
		return nil, errors.New("appsheet app id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAppSheetURL
	}
	if cfg.Table == "" {
		cfg.Table = DefaultAppSheetTable
	}
	if cfg.Locale == "" {
		cfg.Locale = "en-US"
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "Indian/Mauritius"
	}
	actionURL := fmt.Sprintf("%s/apps/%s/tables/%s/Action",
		strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(cfg.AppID), url.PathEscape(cfg.Table))
	return &AppSheetClient{
		actionURL: actionURL,
		accessKey: cfg.AccessKey,
		locale:    cfg.Locale,
		timeZone:  cfg.TimeZone,
		req:       newRequester("appsheet", cfg.Timeout, NoRetry),
	}, nil
}

type appSheetAction struct {
	Action     string             `json:"Action"`
	Properties appSheetProperties `json:"Properties"`
	Rows       []interface{}      `json:"Rows"`
}

type appSheetProperties struct {
	Locale   string `json:"Locale"`
	TimeZone string `json:"TimeZone"`
}

// AddRow posts one row with Action "Add".
func (c *AppSheetClient) AddRow(ctx context.Context, row interface{}) error {
	header := http.Header{}
	header.Set("applicationAccessKey", c.accessKey)
	payload := appSheetAction{
		Action:     "Add",
		Properties: appSheetProperties{Locale: c.locale, TimeZone: c.timeZone},
		Rows:       []interface{}{row},
	}
	if err := c.req.postJSON(ctx, c.actionURL, header, payload, nil); err != nil {
		return fmt.Errorf("appsheet add: %w", err)
	}
	return nil
}
