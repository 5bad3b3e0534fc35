package customvalidator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	iso8601date "github.com/madeneat/wplogify/pkg/ISO8601date"
)

type CustomValidator struct {
	Validator *validator.Validate
}

func NewCustomValidator() *CustomValidator {
	valCustom := validator.New()
	valCustom.RegisterCustomTypeFunc(validateTime, time.Time{})
	valCustom.RegisterValidation("ISO8601date", validateDateTimeIso8601)
	return &CustomValidator{Validator: valCustom}
}

func validateDateTimeIso8601(fl validator.FieldLevel) bool {
	return iso8601date.Looks(fl.Field().String())
}

// validateTime hides timestamps before the epoch so `required` rejects them.
func validateTime(field reflect.Value) interface{} {
	if timeVal, ok := field.Interface().(time.Time); ok {
		minTime := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
		if timeVal.After(minTime) {
			return timeVal.Unix()
		}
	}
	return nil
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.Validator.Struct(i)
}

// Messages renders validator errors as one line per failing field. Errors
// that are not validation errors yield nil.
func Messages(err error) []string {
	var castedObject validator.ValidationErrors
	if !errors.As(err, &castedObject) {
		return nil
	}

	var message []string
	for _, err := range castedObject {
		switch err.Tag() {
		case "required":
			message = append(message, fmt.Sprintf("%s is required", err.Field()))
		case "email":
			message = append(message, fmt.Sprintf("%s is not valid email", err.Field()))
		case "ip":
			message = append(message, fmt.Sprintf("%s is not a valid ip address", err.Field()))
		case "gte":
			message = append(message, fmt.Sprintf("%s value must be greater than %s", err.Field(), err.Param()))
		case "lte":
			message = append(message, fmt.Sprintf("%s value must be lower than %s", err.Field(), err.Param()))
		case "max":
			message = append(message, fmt.Sprintf("%s must be at most %s long", err.Field(), err.Param()))
		case "ISO8601date":
			message = append(message, fmt.Sprintf("%s value must be ISO8601 date (YYYY-MM-DDTHH:mm:ssZ)", err.Field()))
		default:
			message = append(message, fmt.Sprintf("%s failed %s", err.Field(), err.Tag()))
		}
	}
	return message
}

// ErrorMapper assigns a gRPC code to errors a package knows about.
type ErrorMapper func(err error) (codes.Code, bool)

// GrpcErrorHandler turns validation failures into InvalidArgument and lets
// each mapper classify the remaining errors. Errors that already carry a
// gRPC status, or that nobody claims, pass through untouched.
func GrpcErrorHandler(mappers ...ErrorMapper) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, err
		}

		if message := Messages(err); len(message) > 0 {
			return resp, status.Errorf(codes.InvalidArgument, "%+v", message)
		}

		if _, ok := status.FromError(err); ok {
			return resp, err
		}

		for _, m := range mappers {
			if code, ok := m(err); ok {
				return resp, status.Error(code, err.Error())
			}
		}

		return resp, err
	}
}
