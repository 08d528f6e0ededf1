package errors

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewError tests the basic creation of errors.
func TestNewError(t *testing.T) {
	tests := []struct {
		name    string
		code    ErrorCode
		message string
	}{
		{
			name:    "InvalidConfig",
			code:    InvalidConfig,
			message: "eta must be above one",
		},
		{
			name:    "ContractViolation",
			code:    ContractViolation,
			message: "fitness is missing an objective",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message)

			customErr, ok := err.(*Error)

			assert.True(t, ok, "should be a custom *Error")
			assert.Equal(t, tt.code, customErr.Code())
			assert.Equal(t, tt.message, customErr.Error())
			assert.Nil(t, customErr.Unwrap())
		})
	}
}

// TestWrapError tests error wrapping functionality.
func TestWrapError(t *testing.T) {
	originalErr := stderrors.New("original error")

	tests := []struct {
		name       string
		err        error
		code       ErrorCode
		wrapMsg    string
		expectNil  bool
		expectCode ErrorCode
	}{
		{
			name:       "Wrap normal error",
			err:        originalErr,
			code:       EvaluationFailed,
			wrapMsg:    "objective function failed",
			expectNil:  false,
			expectCode: EvaluationFailed,
		},
		{
			name:      "Wrap nil error",
			err:       nil,
			code:      EvaluationFailed,
			wrapMsg:   "objective function failed",
			expectNil: true,
		},
		{
			name:       "Wrap custom error",
			err:        New(ResourceNotFound, "bracket not found"),
			code:       EvaluationFailed,
			wrapMsg:    "objective function failed",
			expectNil:  false,
			expectCode: EvaluationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := Wrap(tt.err, tt.code, tt.wrapMsg)

			if tt.expectNil {
				assert.Nil(t, wrapped)
				return
			}

			assert.NotNil(t, wrapped)

			ourErr := wrapped.(*Error)
			assert.Equal(t, tt.expectCode, ourErr.Code())
			assert.Contains(t, ourErr.Error(), tt.wrapMsg)

			unwrapped := ourErr.Unwrap()
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), unwrapped.Error())
			}
		})
	}
}

// TestErrorInterfaces tests compliance with Go error interfaces.
func TestErrorInterfaces(t *testing.T) {
	t.Run("errors.Is support", func(t *testing.T) {
		err1 := New(InvalidConfig, "first")
		err2 := New(InvalidConfig, "second")
		err3 := New(ResourceNotFound, "third")

		assert.True(t, stderrors.Is(err1, err2),
			"Errors with same code should match with Is")
		assert.False(t, stderrors.Is(err1, err3),
			"Errors with different codes should not match with Is")
	})

	t.Run("errors.As support", func(t *testing.T) {
		originalErr := New(InvalidConfig, "original")
		wrappedErr := Wrap(originalErr, EvaluationFailed, "wrapped")

		var customErr *Error
		assert.True(t, stderrors.As(wrappedErr, &customErr),
			"Should be able to extract custom error type")
		assert.Equal(t, EvaluationFailed, customErr.Code())
	})

	t.Run("error unwrapping", func(t *testing.T) {
		baseErr := stderrors.New("base error")
		wrapped := Wrap(baseErr, EvaluationFailed, "wrapped error")

		unwrapped := stderrors.Unwrap(wrapped)
		assert.Equal(t, baseErr.Error(), unwrapped.Error())
	})
}

func TestErrorFields(t *testing.T) {
	t.Run("Empty fields", func(t *testing.T) {
		err := New(InvalidConfig, "error")
		customErr := err.(*Error)
		assert.Empty(t, customErr.Fields())
	})

	t.Run("Add fields", func(t *testing.T) {
		fields := Fields{
			"bracket_id": 3,
			"budget":     9.0,
		}
		err := WithFields(New(ContractViolation, "error"), fields)
		customErr := err.(*Error)
		assert.Equal(t, fields, customErr.Fields())
	})

	t.Run("Merge fields", func(t *testing.T) {
		err := WithFields(New(ContractViolation, "error"), Fields{"a": 1})
		err = WithFields(err, Fields{"b": 2})
		customErr := err.(*Error)
		assert.Len(t, customErr.Fields(), 2)
		assert.Equal(t, 1, customErr.Fields()["a"])
		assert.Equal(t, 2, customErr.Fields()["b"])
	})

	t.Run("Fields returns copy not reference", func(t *testing.T) {
		err := WithFields(New(InvalidConfig, "error"), Fields{"key": "original"})
		customErr := err.(*Error)

		returned := customErr.Fields()
		returned["key"] = "modified"

		assert.Equal(t, "original", customErr.Fields()["key"])
	})
}

func TestErrorString(t *testing.T) {
	t.Run("Wrapped chain with fields", func(t *testing.T) {
		baseErr := stderrors.New("disk full")
		err := Wrap(baseErr, PersistenceFailed, "history not saved")
		err = WithFields(err, Fields{"run": "03-14-26_10-00-00"})

		result := err.Error()
		assert.Contains(t, result, "history not saved")
		assert.Contains(t, result, "disk full")
		assert.Contains(t, result, "run=03-14-26_10-00-00")
	})

	t.Run("WithFields on non-Error type", func(t *testing.T) {
		baseErr := stderrors.New("base error")
		result := WithFields(baseErr, Fields{"context": "test"})

		customErr, ok := result.(*Error)
		require.True(t, ok)
		assert.Equal(t, Unknown, customErr.Code())
		assert.Equal(t, "test", customErr.Fields()["context"])
	})
}

func TestCheckContext(t *testing.T) {
	t.Run("live context", func(t *testing.T) {
		assert.NoError(t, CheckContext(context.Background(), "run"))
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := CheckContext(ctx, "run")
		require.Error(t, err)
		assert.Equal(t, Canceled, CodeOf(err))
		assert.Contains(t, err.Error(), "run canceled")
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, InvalidConfig, CodeOf(New(InvalidConfig, "bad")))
	assert.Equal(t, Timeout, CodeOf(Wrap(stderrors.New("slow"), Timeout, "deadline")))
	assert.Equal(t, Unknown, CodeOf(stderrors.New("plain")))
	assert.Equal(t, Unknown, CodeOf(nil))
}
