package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid data", ErrInvalidData, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"remote rejection", &RemoteError{Message: "connection refused by catalog"}, false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err), "error: %v", test.err)
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid data", ErrInvalidData, true},
		{"refused edge", fmt.Errorf("wrap: %w", ErrEdgeRefused), true},
		{"unknown type", ErrUnknownType, true},
		{"remote rejection", &RemoteError{Message: "Entity with id [3] not found."}, true},
		{"connection lost", ErrConnectionLost, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsInvalid(test.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(WrapFatal(fmt.Errorf("boom"), "KVStore", "Get", "unmarshal")))
	assert.False(t, IsFatal(ErrKeyNotFound))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(&RemoteError{Message: "bad"}))
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("something odd")))
	assert.Equal(t, ErrorInvalid, Classify(WrapInvalid(ErrConnectionLost, "A", "B", "c")))
}

func TestWrap(t *testing.T) {
	base := fmt.Errorf("base")
	err := Wrap(base, "Manager", "DeleteNode", "fetch node")
	require.Error(t, err)
	assert.Equal(t, "Manager.DeleteNode: fetch node failed: base", err.Error())
	assert.True(t, errors.Is(err, base))
	assert.Nil(t, Wrap(nil, "a", "b", "c"))
}

func TestWrapClassified(t *testing.T) {
	err := WrapTransient(ErrConnectionLost, "HTTPClient", "GetNode", "send request")
	var ce *ClassifiedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "HTTPClient", ce.Component)
	assert.Equal(t, "GetNode", ce.Operation)
	assert.True(t, errors.Is(err, ErrConnectionLost))
	assert.True(t, strings.HasPrefix(err.Error(), "HTTPClient.GetNode: send request failed"))

	assert.Nil(t, WrapInvalid(nil, "a", "b", "c"))
	assert.Nil(t, WrapFatal(nil, "a", "b", "c"))
	assert.Nil(t, WrapTransient(nil, "a", "b", "c"))
}

func TestWrapClassPreservesRemote(t *testing.T) {
	remote := &RemoteError{Code: 1114, Message: "Entity with name [Kafka] already exists.", Op: "create", Category: "sources"}
	err := WrapClass(remote, "Manager", "CreateNodes", "create node")

	assert.True(t, IsInvalid(err))
	re, ok := IsRemote(err)
	require.True(t, ok)
	assert.Equal(t, 1114, re.Code)
	assert.Equal(t, "Entity with name [Kafka] already exists.", UserMessage(err))
	assert.Contains(t, remote.Error(), "create sources rejected")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrKeyNotFound))
	assert.True(t, IsNotFound(&RemoteError{Status: 404, Message: "missing"}))
	assert.True(t, IsNotFound(&RemoteError{Code: 1101, Message: "Entity with id [9] not found."}))
	assert.False(t, IsNotFound(&RemoteError{Status: 400, Message: "bad"}))
	assert.False(t, IsNotFound(nil))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "plain", UserMessage(fmt.Errorf("plain")))
}
