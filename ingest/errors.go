package ingest

import (
	"context"
	"errors"
	"net"

	"ally-backend/vectorstore"
)

// ErrorKind buckets upsert failures for retry decisions and reporting.
type ErrorKind int

const (
	// KindTransient covers network hiccups and server-side errors worth
	// retrying with backoff.
	KindTransient ErrorKind = iota
	// KindRateLimit means the index pushed back; retry after a longer wait.
	KindRateLimit
	// KindPermanent means retrying the same request cannot succeed.
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "permanent"
	}
}

// ClassifyUpsertError decides how an index upsert failure should be
// handled. Cancellation is permanent; the caller asked to stop.
func ClassifyUpsertError(err error) ErrorKind {
	if err == nil {
		return KindPermanent
	}

	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var statusErr *vectorstore.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 429:
			return KindRateLimit
		case statusErr.Code >= 500:
			return KindTransient
		default:
			return KindPermanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	if errors.Is(err, vectorstore.ErrUnavailable) {
		return KindTransient
	}

	return KindPermanent
}
