package storage

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"
)

// backoff retries an operation with exponentially growing pauses.
type backoff struct {
	retries int
	base    time.Duration
}

var defaultBackoff = backoff{retries: 3, base: 100 * time.Millisecond}

// do runs op until it succeeds, fails permanently, or retries run out.
func (b backoff) do(ctx context.Context, op func() error) error {
	delay := b.base
	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = op(); err == nil || permanent(err) || attempt == b.retries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	if errors.Is(err, ErrObjectNotFound) || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NoSuchKey", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidBucketName":
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultClient
	}
	return false
}
