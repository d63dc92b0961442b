/**
 * @description
 * This file adapts the Meridian API client to the narrow interfaces the
 * resolution engine and verification tracker consume. The adapters flatten
 * Meridian's JSON:API envelopes into domain values and keep the engines free
 * of any transport knowledge.
 *
 * @dependencies
 * - internal/domain: Domain models.
 * - pkg/meridianclient: The Meridian BaaS API client.
 */

package app

import (
	"context"
	"strings"

	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
	"github.com/tamfolio/treegar-orchestration-service/pkg/meridianclient"
)

// meridianResolver adapts the Meridian client to resolution.Resolver.
type meridianResolver struct {
	client *meridianclient.Client
}

func (r *meridianResolver) ResolveBankAccount(ctx context.Context, bankID, accountNumber string) (string, error) {
	resp, err := r.client.ResolveBankAccount(ctx, bankID, accountNumber)
	if err != nil {
		return "", err
	}
	return resp.Data.Attributes.AccountName, nil
}

func (r *meridianResolver) ResolveCustomerTag(ctx context.Context, tag string) (string, error) {
	resp, err := r.client.ResolveCustomerTag(ctx, tag)
	if err != nil {
		return "", err
	}
	return resp.Data.Attributes.Name, nil
}

// meridianRecordSource adapts the Meridian client to verification.RecordSource.
type meridianRecordSource struct {
	client *meridianclient.Client
}

func (s *meridianRecordSource) FetchVerificationRecords(ctx context.Context, customerID string) ([]domain.VerificationRecord, error) {
	resp, err := s.client.ListVerificationRecords(ctx, customerID)
	if err != nil {
		return nil, err
	}
	records := make([]domain.VerificationRecord, 0, len(resp.Data))
	for _, entry := range resp.Data {
		records = append(records, domain.VerificationRecord{
			Type:          verificationType(entry.Type),
			Status:        verificationStatus(entry.Attributes.Status),
			IsCompleted:   entry.Attributes.IsCompleted,
			ResultPayload: entry.Attributes.ResultPayload,
		})
	}
	return records, nil
}

func (s *meridianRecordSource) fetchDocumentRecords(ctx context.Context, customerID string) ([]domain.DocumentRecord, error) {
	resp, err := s.client.ListDocumentRecords(ctx, customerID)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.DocumentRecord, 0, len(resp.Data))
	for _, entry := range resp.Data {
		docs = append(docs, domain.DocumentRecord{
			DocumentKey: entry.Attributes.DocumentKey,
			Required:    entry.Attributes.Required,
			Status:      documentStatus(entry.Attributes.Status),
		})
	}
	return docs, nil
}

func verificationType(raw string) domain.VerificationType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bvn":
		return domain.VerificationBVN
	case "nin":
		return domain.VerificationNIN
	case "liveness":
		return domain.VerificationLiveness
	case "rc_number", "rcnumber":
		return domain.VerificationRCNumber
	}
	return domain.VerificationType(strings.ToLower(strings.TrimSpace(raw)))
}

func verificationStatus(raw string) domain.VerificationStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "verified", "approved", "successful":
		return domain.VerificationVerified
	case "pending", "processing":
		return domain.VerificationPending
	}
	return domain.VerificationNotStarted
}

func documentStatus(raw string) domain.DocumentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved":
		return domain.DocumentApproved
	case "pending", "processing":
		return domain.DocumentPending
	}
	return domain.DocumentNotUploaded
}
