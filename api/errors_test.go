package api_test

import (
	"errors"
	"testing"

	"github.com/momentics/isorec/api"
)

func TestErrorCodeUnwrap(t *testing.T) {
	err := api.NewError(api.ErrCodeInvalidArgument, "thread buffer size must be positive").
		WithContext("thread_buffer_size", 0)
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatal("structured error does not unwrap to its sentinel")
	}
	if errors.Is(err, api.ErrNotFound) {
		t.Error("structured error matched the wrong sentinel")
	}
	if err.Context["thread_buffer_size"] != 0 {
		t.Error("context not recorded")
	}
}

func TestMessageString(t *testing.T) {
	if api.MsgFullBuffer.String() != "full-buffer" || api.MsgDeadBuffer.String() != "dead-buffer" {
		t.Error("unexpected message names")
	}
	var got []api.Message
	var box api.PostBox = api.PostFunc(func(m api.Message) { got = append(got, m) })
	box.Post(api.MsgShutdown)
	if len(got) != 1 || got[0] != api.MsgShutdown {
		t.Error("PostFunc did not forward message")
	}
}
