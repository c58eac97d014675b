package eventstore

import "context"

// SaveResult reports which half of the save path (spec.md §4.6) actually
// committed, so a caller that inspects errors.Is(err, ErrIo) can still tell
// whether the event is durable even though publish failed.
type SaveResult struct {
	Appended  bool
	Published bool
}

// Save appends ev to log, then best-effort publishes it to bus (spec.md
// §4.6). There is no transactional bracket between the two steps: a
// publish failure is reported to the caller as ErrIo, but the append has
// already committed, and a subsequent subscriber's replay protocol (C7)
// will eventually deliver it. The log is the source of truth; the bus is
// an optimization.
func (s *Store) Save(ctx context.Context, ev Event) (SaveResult, error) {
	if ev.Context.Time.IsZero() {
		ev.Context.Time = s.clock.Now()
	}

	if err := s.log.Append(ctx, ev); err != nil {
		return SaveResult{}, err
	}
	result := SaveResult{Appended: true}

	body, err := s.codec.Encode(ev)
	if err != nil {
		s.logger.Error("save: encode failed after append committed", "id", ev.ID, "err", err)
		return result, newErr(ErrIo, "save.encode", ev.ID.String(), err)
	}

	if err := s.bus.Publish(ctx, KindOfData(ev.Data).Topic(), body); err != nil {
		s.logger.Warn("save: publish failed, relying on replay to deliver", "id", ev.ID, "err", err)
		return result, newErr(ErrIo, "save.publish", ev.ID.String(), err)
	}
	result.Published = true

	return result, nil
}
