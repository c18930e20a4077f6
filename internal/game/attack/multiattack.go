package attack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/lock"
)

// MultiRequest is a series of regular attacks on one target.
type MultiRequest struct {
	Request
	Times int
	Fast  bool // holder of the fast attack role waits less between hits
}

// MultiSummary totals a multiattack.
type MultiSummary struct {
	Attempted  int
	Successful int
	Failed     int
	Dodged     int
	Countered  int
	Skipped    int
	Gained     int64
	Lost       int64
	StoppedBy  error // set when the series ended early
}

// Net is the attacker's balance change across every hit.
func (m *MultiSummary) Net() int64 {
	return m.Gained - m.Lost
}

// HitFunc observes each resolved hit, e.g. to post progress.
type HitFunc func(n int, res *Result)

// MultiAttack runs up to Times attacks, waiting between hits. It returns when
// the series completes, the attacker runs out of points or gain allowance,
// or ctx is cancelled.
func (s *Service) MultiAttack(ctx context.Context, req MultiRequest, onHit HitFunc) (*MultiSummary, error) {
	if req.Times < MinMultiTimes || req.Times > MaxMultiTimes {
		return nil, fmt.Errorf("%w: %d-%d", ErrInvalidTimes, MinMultiTimes, MaxMultiTimes)
	}
	if req.Amount < MinStake {
		return nil, fmt.Errorf("%w: minimum is %d", ErrInvalidStake, MinStake)
	}
	if err := s.precheck(ctx, req.Request); err != nil {
		return nil, err
	}
	if err := s.multiCD.Check(req.AttackerID, req.Now); err != nil {
		return nil, err
	}
	s.multiCD.Start(req.AttackerID, req.Now)

	delay := MultiDelay
	if req.Fast {
		delay = MultiFastDelay
	}

	sum := &MultiSummary{}
	for i := 1; i <= req.Times; i++ {
		if i > 1 {
			if err := s.sleep(ctx, delay); err != nil {
				sum.StoppedBy = err
				break
			}
		}

		hit := req.Request
		hit.Now = s.now()
		if hit.ChannelID != "" {
			if active, _ := s.ceasefire.Active(hit.ChannelID, hit.Now); active {
				sum.StoppedBy = ErrCeasefire
				break
			}
		}

		res, err := s.resolve(ctx, KindAttack, hit)
		switch {
		case err == nil:
		case errors.Is(err, ErrTargetTooPoor), errors.Is(err, ErrTargetLossCap), errors.Is(err, lock.ErrBusy):
			sum.Skipped++
			continue
		default:
			sum.StoppedBy = err
		}
		if sum.StoppedBy != nil {
			break
		}

		sum.Attempted++
		out := res.Outcome
		switch {
		case out.Success:
			sum.Successful++
			sum.Gained += out.Net()
		case out.Dodged:
			sum.Dodged++
			sum.Lost -= out.Net()
		default:
			sum.Failed++
			sum.Lost -= out.Net()
		}
		if out.Countered {
			sum.Countered++
		}
		if onHit != nil {
			onHit(i, res)
		}
	}

	log.Info().
		Int64("user_id", req.AttackerID).
		Int64("target_id", req.TargetID).
		Int("attempted", sum.Attempted).
		Int("successful", sum.Successful).
		Int("skipped", sum.Skipped).
		Int64("net", sum.Net()).
		Msg("Multiattack finished")

	return sum, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
