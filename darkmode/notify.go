package darkmode

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hazyhaar/darkzap/watch"
)

// Subscribe returns a channel receiving every committed change, from this
// process immediately and from other processes once Watch picks them up.
// Sends never block: a subscriber whose buffer is full misses the change.
// cancel closes the channel.
func (s *Service) Subscribe(buf int) (<-chan Change, func()) {
	ch := make(chan Change, buf)
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publishLocal fans out a change this process committed. Callers hold
// writeMu. The entry is remembered for Poll only when earlier log entries are
// still unread by a running Watch; otherwise the cursor moves past it.
func (s *Service) publishLocal(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case c.Seq <= s.cursor:
	case c.Seq == s.cursor+1 || !s.polling:
		s.cursor = c.Seq
	default:
		s.local[c.Seq] = true
	}
	s.fanOut(c)
}

// fanOut must be called with s.mu held.
func (s *Service) fanOut(c Change) {
	for id, ch := range s.subs {
		select {
		case ch <- c:
		default:
			s.logger.Warn("darkmode: subscriber lagging, change dropped", "subscriber", id, "seq", c.Seq)
		}
	}
}

// Poll reads the change log past the last seen entry and publishes the
// changes this process did not make itself.
func (s *Service) Poll(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	changes, err := s.store.ChangesSince(ctx, cursor)
	if err != nil {
		return fmt.Errorf("darkmode: poll: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range changes {
		if c.Seq <= s.cursor {
			continue
		}
		s.cursor = c.Seq
		if s.local[c.Seq] {
			delete(s.local, c.Seq)
			continue
		}
		s.logger.Debug("darkmode: external change", "kind", c.Kind, "host", c.Host, "seq", c.Seq)
		s.fanOut(c)
	}
	return nil
}

// Watch polls PRAGMA user_version every interval and runs Poll when it moves.
// It blocks until ctx is done.
func (s *Service) Watch(ctx context.Context, interval time.Duration) {
	s.setPolling(true)
	defer s.setPolling(false)
	watch.NewPoller(s.store.DB, interval, s.logger).Run(ctx, s.Poll)
}

func (s *Service) setPolling(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polling = on
	if !on {
		clear(s.local)
	}
}

// Hosts forwards the host of every change of one of kinds from in. A change
// without a host is forwarded as "", meaning every host. The returned channel
// closes when in closes or ctx is done.
func Hosts(ctx context.Context, in <-chan Change, kinds ...Kind) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-in:
				if !ok {
					return
				}
				if len(kinds) > 0 && !slices.Contains(kinds, c.Kind) {
					continue
				}
				select {
				case out <- c.Host:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
