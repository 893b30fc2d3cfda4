package awsstore

import (
	"errors"

	"github.com/aws/smithy-go"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
)

// classify maps SDK errors onto domain kinds by their service error code.
// Throttling, server faults and credential failures all surface as
// BackendUnavailable.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != "" {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket", "ResourceNotFoundException":
			return domain.Wrap(domain.KindNotFound, err, msg)
		case "ConditionalCheckFailedException", "ValidationException",
			"ItemCollectionSizeLimitExceededException", "TransactionCanceledException":
			return domain.Wrap(domain.KindBackendRejected, err, msg)
		}
	}
	return domain.Wrap(domain.KindBackendUnavailable, err, msg)
}
