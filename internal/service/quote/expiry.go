package quote

import (
	"context"

	"cedar-commerce/internal/domain"
	"cedar-commerce/internal/events"
)

// DefaultSweepBatch bounds how many quotes one sweep statement expires.
const DefaultSweepBatch = 200

// ExpireOverdue expires every open quote past its deadline, in batches, and reports how many it
// moved. Running it again, or concurrently, only touches quotes nobody else expired.
func (s *Service) ExpireOverdue(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = DefaultSweepBatch
	}
	total := 0
	for {
		expired, err := s.repo.ExpireOverdue(ctx, s.now().UTC(), batch)
		if err != nil {
			return total, err
		}
		for _, e := range expired {
			s.publish(ctx, events.QuoteStatusChanged{
				QuoteID:    e.ID,
				CustomerID: e.CustomerID,
				From:       e.From,
				To:         domain.QuoteExpired,
				Actor:      domain.PartySystem,
			})
		}
		total += len(expired)
		if len(expired) < batch {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	if total > 0 {
		s.logger.Printf("quote: expired overdue count=%d", total)
	}
	return total, nil
}
