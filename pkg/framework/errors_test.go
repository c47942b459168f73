package framework

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultiError(t *testing.T) {
	var errs MultiError
	errs.Append(nil, nil)
	require.NoError(t, errs.Err())

	errs.Append(io.EOF)
	require.Equal(t, io.EOF, errs.Err())

	errs.Append(nil, io.ErrUnexpectedEOF)
	err := errs.Err()
	require.Equal(t, "2 errors: EOF; unexpected EOF", err.Error())
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestRunWithContextCancel(t *testing.T) {
	t.Run("fn returns", func(t *testing.T) {
		canceled := false
		err := RunWithContextCancel(context.Background(), func() { canceled = true }, func() error { return io.EOF })
		require.Equal(t, io.EOF, err)
		require.False(t, canceled)
	})
	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		release := make(chan struct{})
		go cancel()
		err := RunWithContextCancel(ctx, func() { close(release) }, func() error {
			<-release
			return io.ErrClosedPipe
		})
		require.Equal(t, context.Canceled, err)
	})
}

func TestRunnerWait(t *testing.T) {
	r := NewRunner(context.Background())
	r.Go(
		RunFunc(func(context.Context) error { return nil }),
		NamedRun("eof", RunFunc(func(context.Context) error { return io.EOF })),
		RunFunc(func(context.Context) error { return context.Canceled }),
	)
	require.Equal(t, io.EOF, r.Wait())
}

func TestRunnerWaitNothingStarted(t *testing.T) {
	require.NoError(t, NewRunner(context.Background()).Wait())
}
