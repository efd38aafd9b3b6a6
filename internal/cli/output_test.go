package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	resp := decodeResponse(t, buf.String())
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(CodeRejected, "rejected by the service", nil)
	require.NoError(t, err)

	resp := decodeResponse(t, buf.String())
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeRejected, resp.Error.Code)
	assert.Equal(t, "rejected by the service", resp.Error.Message)
}

type fixedText string

func (f fixedText) WriteText(w io.Writer) error {
	_, err := io.WriteString(w, "rendered: "+string(f)+"\n")
	return err
}

func TestOutputFormatter_TextUsesRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(fixedText("queue")))
	assert.Equal(t, "rendered: queue\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Success("deleted win 101"))
	assert.Equal(t, "deleted win 101\n", buf.String())
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "text",
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   true,
	}

	err := formatter.Error(CodeStorage, "local storage unavailable", map[string]string{"path": "cadence.db"})
	require.NoError(t, err)
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error [E002]: local storage unavailable")
	assert.Contains(t, errOut.String(), "Details:")
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	original := &ExitError{Code: ExitFailure, ErrCode: CodeNoData, Message: "offline and nothing cached"}
	returned := formatter.Fail(original)
	assert.Same(t, original, returned)
	assert.True(t, Reported(returned))
	assert.False(t, Reported(NewExitError(ExitFailure, "fresh")))

	resp := decodeResponse(t, buf.String())
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNoData, resp.Error.Code)

	buf.Reset()
	_ = formatter.Fail(errors.New("plain"))
	assert.Equal(t, CodeInternal, decodeResponse(t, buf.String()).Error.Code)
}

func TestExitError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "open database", cause)

	assert.Equal(t, "open database: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitFailure, GetExitCode(cause))
	assert.Equal(t, "bare", NewExitError(ExitFailure, "bare").Error())
}

func TestCLIResponse_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(CLIResponse{Status: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}
