package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zkapauthz/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data, "ignored\n")
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.NotContains(t, buf.String(), "ignored")
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeInvalidVoucher, "voucher is malformed", map[string]string{"voucher": "x"})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E103", resp.Error.Code)
	assert.Equal(t, "voucher is malformed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success(nil, "Passes: 3\n"))
	require.NoError(t, formatter.Error(ErrCodeConfig, "bad config", nil))
	assert.Equal(t, "Passes: 3\nError [E104]: bad config\n", buf.String())
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"command_error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped", fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "bad flag")), ExitCommandError},
		{"plain", errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitFailure, "failed to add voucher", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to add voucher: disk full", err.Error())
}

func TestOpenStoreError(t *testing.T) {
	t.Run("schema", func(t *testing.T) {
		err := openStoreError(&store.SchemaError{Required: 1, Actual: 2})
		assert.Equal(t, ExitCommandError, err.Code)
		assert.Contains(t, err.Error(), ErrCodeSchema)

		var schemaErr *store.SchemaError
		assert.ErrorAs(t, err, &schemaErr)
	})

	t.Run("open", func(t *testing.T) {
		err := openStoreError(&store.StoreOpenError{Reason: &os.PathError{Op: "mkdir", Path: "/x", Err: os.ErrPermission}})
		assert.Equal(t, ExitCommandError, err.Code)
		assert.Contains(t, err.Error(), ErrCodeStoreOpen)
		assert.True(t, store.IsStoreOpenError(err))
	})

	t.Run("other", func(t *testing.T) {
		err := openStoreError(errors.New("boom"))
		assert.Equal(t, ExitFailure, err.Code)
	})
}
