package relay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/clubllm/backend/internal/service/relay"
)

type stubCompleter struct {
	reply  string
	deltas []string
	err    error
	calls  int
	got    string
}

func (s *stubCompleter) Complete(_ context.Context, message string) (string, error) {
	s.calls++
	s.got = message
	return s.reply, s.err
}

func (s *stubCompleter) StreamComplete(_ context.Context, message string, onDelta func(string) error) (string, error) {
	s.calls++
	s.got = message
	for _, d := range s.deltas {
		if err := onDelta(d); err != nil {
			return "", err
		}
	}
	return s.reply, s.err
}

func TestSendEmptyMessageSkipsUpstream(t *testing.T) {
	stub := &stubCompleter{reply: "unused"}
	res := relay.New(stub).Send(context.Background(), "")

	require.Equal(t, relay.OutcomeEmptyMessage, res.Outcome)
	require.ErrorIs(t, res.Err, relay.ErrEmptyMessage)
	require.Zero(t, stub.calls)
}

func TestSendForwardsVerbatim(t *testing.T) {
	stub := &stubCompleter{reply: "Hi there"}
	res := relay.New(stub).Send(context.Background(), "  Hello \n")

	require.Equal(t, relay.OutcomeOK, res.Outcome)
	require.Equal(t, "Hi there", res.Text)
	require.NoError(t, res.Err)
	require.Equal(t, "  Hello \n", stub.got)
	require.Equal(t, 1, stub.calls)
}

func TestSendUpstreamFailure(t *testing.T) {
	cause := errors.New("502 bad gateway from provider")
	stub := &stubCompleter{err: cause}
	res := relay.New(stub).Send(context.Background(), "Hello")

	require.Equal(t, relay.OutcomeUpstreamFailure, res.Outcome)
	require.ErrorIs(t, res.Err, cause)
	require.Empty(t, res.Text)
	require.Equal(t, 1, stub.calls, "failures are not retried")
}

func TestStreamDeliversDeltas(t *testing.T) {
	stub := &stubCompleter{reply: "Hi there", deltas: []string{"Hi", " there"}}

	var got []string
	res := relay.New(stub).Stream(context.Background(), "Hello", func(d string) error {
		got = append(got, d)
		return nil
	})

	require.Equal(t, relay.OutcomeOK, res.Outcome)
	require.Equal(t, "Hi there", res.Text)
	require.Equal(t, []string{"Hi", " there"}, got)
}

func TestStreamEmptyAndFailure(t *testing.T) {
	stub := &stubCompleter{err: errors.New("boom")}
	r := relay.New(stub)

	res := r.Stream(context.Background(), "", func(string) error { return nil })
	require.Equal(t, relay.OutcomeEmptyMessage, res.Outcome)
	require.Zero(t, stub.calls)

	res = r.Stream(context.Background(), "Hello", func(string) error { return nil })
	require.Equal(t, relay.OutcomeUpstreamFailure, res.Outcome)
}

func TestStreamCallerFailureIsNotUpstreamFailure(t *testing.T) {
	stub := &stubCompleter{reply: "Hi there", deltas: []string{"Hi", " there"}}
	gone := errors.New("write: broken pipe")

	delivered := 0
	res := relay.New(stub).Stream(context.Background(), "Hello", func(string) error {
		delivered++
		return gone
	})

	require.Equal(t, relay.OutcomeDeliveryFailure, res.Outcome)
	require.ErrorIs(t, res.Err, relay.ErrDelivery)
	require.ErrorIs(t, res.Err, gone)
	require.Equal(t, 1, delivered, "stream stops at the first failed delivery")
	require.Equal(t, 1, stub.calls)
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "ok", relay.OutcomeOK.String())
	require.Equal(t, "empty_message", relay.OutcomeEmptyMessage.String())
	require.Equal(t, "upstream_failure", relay.OutcomeUpstreamFailure.String())
	require.Equal(t, "delivery_failure", relay.OutcomeDeliveryFailure.String())
	require.Equal(t, "unknown", relay.Outcome(42).String())
}
