package api

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/segmenter/internal/translate"
	"github.com/solatis/segmenter/internal/types"
)

// Error mapping:
//
//	not found (segment or node)  -> NOT_FOUND
//	etag mismatch                -> FAILED_PRECONDITION
//	validation                   -> INVALID_ARGUMENT
//	context timeout / cancel     -> DEADLINE_EXCEEDED / CANCELED
//	translator exhausted         -> UNAVAILABLE
//	anything else (store, I/O)   -> UNAVAILABLE
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, types.ErrSegmentNotFound), errors.Is(err, types.ErrNodeNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, types.ErrETagMismatch):
		return status.Error(codes.FailedPrecondition, err.Error())
	case types.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, translate.ErrNoTranslation):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Unavailable, err.Error())
}

func invalidArgument(format string, args ...any) error {
	return status.Error(codes.InvalidArgument, fmt.Sprintf(format, args...))
}
