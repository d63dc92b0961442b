/**
 * @description
 * This package provides a client for interacting with the Meridian BaaS API.
 * It encapsulates the logic for making authenticated HTTP requests to Meridian's
 * endpoints, handling request body construction, and parsing responses. The
 * orchestration core consumes five Meridian operations: bank account resolution,
 * customer tag resolution, single payout, bulk payout, and the verification /
 * document record listings backing the KYC journey.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, log, net/http, time: Standard Go libraries.
 */
package meridianclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Client is a client for the Meridian API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Meridian API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ResolveAccountRequest is the payload for a bank account resolution.
type ResolveAccountRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			BankID        string `json:"bankId"`
			AccountNumber string `json:"accountNumber"`
		} `json:"attributes"`
	} `json:"data"`
}

// ResolveAccountResponse is Meridian's answer to an account resolution.
type ResolveAccountResponse struct {
	Data struct {
		Attributes struct {
			AccountName string `json:"accountName"`
		} `json:"attributes"`
	} `json:"data"`
}

// ResolveTagRequest is the payload for a customer tag resolution.
type ResolveTagRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Tag string `json:"tag"`
		} `json:"attributes"`
	} `json:"data"`
}

// ResolveTagResponse is Meridian's answer to a tag resolution.
type ResolveTagResponse struct {
	Data struct {
		Attributes struct {
			Name        string `json:"name"`
			CustomerTag string `json:"customerTag"`
		} `json:"attributes"`
	} `json:"data"`
}

// PayoutItem is one recipient instruction inside a payout request.
type PayoutItem struct {
	BankID        string `json:"bankId,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	RecipientTag  string `json:"recipientTag,omitempty"`
	Amount        int64  `json:"amount"` // in kobo
	Narration     string `json:"narration"`
}

// PayoutRequest is the payload for a single payout. The transaction PIN is
// attached here; Meridian verifies it as part of submission.
type PayoutRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Item           PayoutItem `json:"item"`
			TransactionPIN string     `json:"transactionPin"`
		} `json:"attributes"`
	} `json:"data"`
}

// BulkPayoutRequest is the payload for a bulk payout. Bulk is a distinct
// Meridian operation keyed by a group name, never a single payout of length one.
type BulkPayoutRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			GroupName      string       `json:"groupName"`
			Items          []PayoutItem `json:"items"`
			TransactionPIN string       `json:"transactionPin"`
		} `json:"attributes"`
	} `json:"data"`
}

// PayoutResponse is the expected response from Meridian's payout endpoints.
type PayoutResponse struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Reference string `json:"reference"`
			Status    string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// VerificationRecordsResponse wraps the verification record listing.
type VerificationRecordsResponse struct {
	Data []struct {
		Type       string `json:"type"`
		Attributes struct {
			Status        string                 `json:"status"`
			IsCompleted   bool                   `json:"isCompleted"`
			ResultPayload map[string]interface{} `json:"resultPayload,omitempty"`
		} `json:"attributes"`
	} `json:"data"`
}

// DocumentRecordsResponse wraps the business document checklist listing.
type DocumentRecordsResponse struct {
	Data []struct {
		Attributes struct {
			DocumentKey string `json:"documentKey"`
			Required    bool   `json:"required"`
			Status      string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// ErrorResponse represents an error from the Meridian API.
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Errors     []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("meridian api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown meridian api error"
}

// PinRejected reports whether the failure was a transaction PIN rejection, so
// the authorization gate can distinguish a retryable PIN miss from a payout
// failure.
func (e *ErrorResponse) PinRejected() bool {
	for _, apiErr := range e.Errors {
		if apiErr.Title == "PIN_REJECTED" {
			return true
		}
	}
	return false
}

// ResolveBankAccount resolves (bankId, accountNumber) to the account holder's name.
func (c *Client) ResolveBankAccount(ctx context.Context, bankID, accountNumber string) (*ResolveAccountResponse, error) {
	reqPayload := ResolveAccountRequest{}
	reqPayload.Data.Type = "AccountResolution"
	reqPayload.Data.Attributes.BankID = bankID
	reqPayload.Data.Attributes.AccountNumber = accountNumber

	var resp ResolveAccountResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/resolve-account", "resolve_account", reqPayload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResolveCustomerTag resolves a Treegar tag or payment code to a customer identity.
func (c *Client) ResolveCustomerTag(ctx context.Context, tag string) (*ResolveTagResponse, error) {
	reqPayload := ResolveTagRequest{}
	reqPayload.Data.Type = "CustomerResolution"
	reqPayload.Data.Attributes.Tag = tag

	var resp ResolveTagResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/resolve-customer", "resolve_customer", reqPayload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitPayout submits a single transfer with the transaction PIN attached.
func (c *Client) SubmitPayout(ctx context.Context, item PayoutItem, transactionPIN string) (*PayoutResponse, error) {
	reqPayload := PayoutRequest{}
	reqPayload.Data.Type = "Payout"
	reqPayload.Data.Attributes.Item = item
	reqPayload.Data.Attributes.TransactionPIN = transactionPIN

	var resp PayoutResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/payouts", "submit_payout", reqPayload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitBulkPayout submits a named batch of transfers as one Meridian operation.
func (c *Client) SubmitBulkPayout(ctx context.Context, groupName string, items []PayoutItem, transactionPIN string) (*PayoutResponse, error) {
	reqPayload := BulkPayoutRequest{}
	reqPayload.Data.Type = "BulkPayout"
	reqPayload.Data.Attributes.GroupName = groupName
	reqPayload.Data.Attributes.Items = items
	reqPayload.Data.Attributes.TransactionPIN = transactionPIN

	var resp PayoutResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/payouts/bulk", "submit_bulk_payout", reqPayload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListVerificationRecords fetches the customer's verification record snapshot.
func (c *Client) ListVerificationRecords(ctx context.Context, customerID string) (*VerificationRecordsResponse, error) {
	var resp VerificationRecordsResponse
	path := "/api/v1/customers/" + url.PathEscape(customerID) + "/verification-records"
	if err := c.do(ctx, http.MethodGet, path, "list_verification_records", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDocumentRecords fetches the customer's business document checklist.
func (c *Client) ListDocumentRecords(ctx context.Context, customerID string) (*DocumentRecordsResponse, error) {
	var resp DocumentRecordsResponse
	path := "/api/v1/customers/" + url.PathEscape(customerID) + "/document-records"
	if err := c.do(ctx, http.MethodGet, path, "list_document_records", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do executes one request against Meridian and decodes either the success body
// into target or a typed ErrorResponse.
func (c *Client) do(ctx context.Context, method, path, op string, payload, target interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		bodyReader = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-meridian-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=meridian_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
			return fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		errResp.StatusCode = resp.StatusCode
		log.Printf("level=warn component=meridian_client op=%s status=%d title=%q detail=%q", op, resp.StatusCode, firstErrorTitle(errResp), firstErrorDetail(errResp))
		return &errResp
	}

	if target != nil {
		if err := json.Unmarshal(bodyBytes, target); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", op, err)
		}
	}

	return nil
}

func firstErrorTitle(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Title
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
