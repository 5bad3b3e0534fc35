package customvalidator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type sampleActor struct {
	UserID int64     `validate:"gte=0"`
	IP     string    `validate:"omitempty,ip"`
	Seen   time.Time `validate:"required"`
	When   string    `validate:"omitempty,ISO8601date"`
}

func TestValidate(t *testing.T) {
	cv := NewCustomValidator()

	ok := sampleActor{UserID: 1, IP: "10.0.0.1", Seen: time.Now(), When: "2024-01-01T00:00:00Z"}
	require.NoError(t, cv.Validate(ok))

	bad := sampleActor{UserID: -1, IP: "nope", When: "yesterday"}
	err := cv.Validate(bad)
	require.Error(t, err)

	msgs := Messages(err)
	assert.Contains(t, msgs, "UserID value must be greater than 0")
	assert.Contains(t, msgs, "IP is not a valid ip address")
	assert.Contains(t, msgs, "Seen is required")
	assert.Contains(t, msgs, "When value must be ISO8601 date (YYYY-MM-DDTHH:mm:ssZ)")
}

func TestMessages_NotValidationError(t *testing.T) {
	assert.Nil(t, Messages(errors.New("boom")))
}

var errContract = errors.New("contract broken")

func TestGrpcErrorHandler(t *testing.T) {
	mapper := func(err error) (codes.Code, bool) {
		if errors.Is(err, errContract) {
			return codes.FailedPrecondition, true
		}
		return codes.Unknown, false
	}
	interceptor := GrpcErrorHandler(mapper)
	info := &grpc.UnaryServerInfo{FullMethod: "/logify.Events/Record"}

	call := func(handlerErr error) error {
		_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, handlerErr
		})
		return err
	}

	assert.NoError(t, call(nil))

	validationErr := NewCustomValidator().Validate(sampleActor{UserID: -1, Seen: time.Now()})
	assert.Equal(t, codes.InvalidArgument, status.Code(call(validationErr)))

	assert.Equal(t, codes.FailedPrecondition, status.Code(call(errContract)))
	assert.Equal(t, codes.NotFound, status.Code(call(status.Error(codes.NotFound, "gone"))))

	plain := errors.New("plain")
	assert.Same(t, plain, call(plain))
}
