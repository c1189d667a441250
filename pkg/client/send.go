package client

import (
	"context"
	"errors"
	"time"

	"github.com/aeolun/irctunnel/pkg/commands"
	"go.uber.org/zap"
)

// Send hands one raw protocol line to the transport. It is fire and forget:
// the line is not queued if the transport is not open.
func (s *Supervisor) Send(ctx context.Context, line string) error {
	switch s.State() {
	case StateConnected, StateRegistered:
	default:
		return ErrNotConnected
	}

	if err := s.transport.Send(ctx, line); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	s.metrics.LineSent()
	return nil
}

// SendCommand synthesizes one line of user input and sends the result.
// Plain text typed into a channel or query window becomes a PRIVMSG to that
// window. Usage errors are returned in the Result without touching the
// transport; transport failures are returned in Result.Err as a
// *TransportError.
func (s *Supervisor) SendCommand(ctx context.Context, in commands.Input) commands.Result {
	res := commands.Synthesize(s.session, in)
	if errors.Is(res.Err, commands.ErrNotCommand) && in.Origin.Kind != commands.OriginServer && in.Text != "" {
		res = commands.Result{Line: "PRIVMSG " + in.Origin.Name + " :" + in.Text}
	}

	if res.Err != nil {
		var ue *commands.UsageError
		if errors.As(res.Err, &ue) {
			label := ue.Command
			if _, known := commands.Lookup(label); !known && label != "" {
				label = "unknown"
			}
			s.metrics.CommandRejected(label)
		}
		return res
	}
	if res.NoOp {
		s.logger.Debug("debug command", zap.String("text", in.Text))
		return res
	}

	if err := s.Send(ctx, res.Line); err != nil {
		res.Err = err
	}
	return res
}

// SendPaced sends lines one at a time with the configured delay between
// them. Paced sends are serialized with each other. The sequence is
// abandoned with ErrSendAbandoned if the connection leaves Registered or
// re-registers before it finishes; lines already sent stay sent. It returns
// the number of lines handed to the transport.
func (s *Supervisor) SendPaced(ctx context.Context, lines []string) (int, error) {
	s.pacedMu.Lock()
	defer s.pacedMu.Unlock()

	epoch := s.session.Epoch()
	if s.State() != StateRegistered {
		return 0, ErrNotConnected
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for i, line := range lines {
		if i > 0 && s.policy.PacedSendDelay > 0 {
			if timer == nil {
				timer = time.NewTimer(s.policy.PacedSendDelay)
			} else {
				timer.Reset(s.policy.PacedSendDelay)
			}
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			case <-timer.C:
			}
		}

		if s.State() != StateRegistered || s.session.Epoch() != epoch {
			s.logger.Info("paced send abandoned", zap.Int("sent", i), zap.Int("total", len(lines)))
			return i, ErrSendAbandoned
		}
		if err := s.Send(ctx, line); err != nil {
			return i, err
		}
	}
	return len(lines), nil
}
