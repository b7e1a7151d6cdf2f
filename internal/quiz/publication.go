package quiz

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Publisher manages the publication window of quizzes. A published quiz may
// carry an expiration marker in the expiry store; expiry is evaluated lazily
// on read and there is no background timer, so a quiz past its deadline stays
// flagged published in storage until somebody looks at it.
type Publisher struct {
	quizzes QuizStore
	expiry  ExpiryStore
	clock   Clock
}

func NewPublisher(quizzes QuizStore, expiry ExpiryStore, clock Clock) *Publisher {
	if clock == nil {
		clock = SystemClock()
	}
	return &Publisher{quizzes: quizzes, expiry: expiry, clock: clock}
}

// Publish flags the quiz published for the given duration. The expiration
// marker is written before the publication flag.
func (p *Publisher) Publish(ctx context.Context, quizID int64, duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("duration %s: %w", duration, ErrInvalidDuration)
	}

	expiresAt := p.clock.Now().Add(duration)
	if err := p.expiry.SetExpiry(ctx, quizID, expiresAt); err != nil {
		return fmt.Errorf("set expiration: %w", err)
	}
	if err := p.quizzes.SetPublished(ctx, quizID, true); err != nil {
		return fmt.Errorf("publish quiz %d: %w", quizID, err)
	}

	log.Printf("[Publisher] quiz #%d published until %s", quizID, expiresAt.Format(time.RFC3339))
	return nil
}

// Unpublish withdraws the quiz and drops its expiration marker.
func (p *Publisher) Unpublish(ctx context.Context, quizID int64) error {
	if err := p.quizzes.SetPublished(ctx, quizID, false); err != nil {
		return fmt.Errorf("unpublish quiz %d: %w", quizID, err)
	}
	if err := p.expiry.DeleteExpiry(ctx, quizID); err != nil {
		return fmt.Errorf("delete expiration: %w", err)
	}
	return nil
}

// IsPublished evaluates the effective publication state of the quiz, writing
// back an expiry it discovers in passing. A marker exactly at the current
// instant still counts as published.
func (p *Publisher) IsPublished(ctx context.Context, q *Quiz) (bool, error) {
	if !q.IsPublished {
		return false, nil
	}

	expiresAt, ok, err := p.expiry.GetExpiry(ctx, q.ID)
	if err != nil {
		return false, fmt.Errorf("get expiration: %w", err)
	}
	if !ok {
		return true, nil
	}

	if p.clock.Now().After(expiresAt) {
		if err := p.expire(ctx, q.ID); err != nil {
			return false, err
		}
		q.IsPublished = false
		return false, nil
	}
	return true, nil
}

// UpdateExpiredQuizzes sweeps every published quiz and withdraws the ones
// whose deadline passed. Used on listing paths so menus do not show stale
// publications.
func (p *Publisher) UpdateExpiredQuizzes(ctx context.Context) error {
	ids, err := p.quizzes.ListPublishedIDs(ctx)
	if err != nil {
		return fmt.Errorf("list published: %w", err)
	}

	now := p.clock.Now()
	for _, id := range ids {
		expiresAt, ok, err := p.expiry.GetExpiry(ctx, id)
		if err != nil {
			return fmt.Errorf("get expiration for quiz %d: %w", id, err)
		}
		if !ok || !now.After(expiresAt) {
			continue
		}
		if err := p.expire(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) expire(ctx context.Context, quizID int64) error {
	if err := p.quizzes.SetPublished(ctx, quizID, false); err != nil {
		return fmt.Errorf("expire quiz %d: %w", quizID, err)
	}
	if err := p.expiry.DeleteExpiry(ctx, quizID); err != nil {
		return fmt.Errorf("delete expiration for quiz %d: %w", quizID, err)
	}
	log.Printf("[Publisher] quiz #%d publication expired", quizID)
	return nil
}
