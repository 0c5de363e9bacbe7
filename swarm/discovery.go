// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"context"
	"errors"

	"github.com/Arceliar/phony"

	"github.com/bureau-foundation/rtcswarm/lib/keyed"
)

// ErrSessionDestroyed is returned by a destroyed DiscoverySession.
var ErrSessionDestroyed = errors.New("swarm: discovery session destroyed")

// discovery is the subscription shared by every session on a topic.
type discovery struct {
	topic    keyed.Key
	sessions []*DiscoverySession
	ended    bool
}

// end marks the subscription and all its sessions destroyed.
func (d *discovery) end() {
	d.ended = true
	for _, session := range d.sessions {
		session.destroyed = true
	}
	d.sessions = nil
}

// DiscoverySession is one caller's interest in a topic. The topic stays
// joined until every session on it is destroyed.
type DiscoverySession struct {
	swarm     *Swarm
	discovery *discovery
	destroyed bool // actor-owned
}

// Topic returns the session's topic.
func (d *DiscoverySession) Topic() keyed.Key { return d.discovery.topic }

// Join subscribes to topic. The first session on a topic announces it
// and dials every known peer that shares it; later sessions share the
// subscription.
func (s *Swarm) Join(topic keyed.Key) (*DiscoverySession, error) {
	var session *DiscoverySession
	err := s.run(func() error {
		session = s._join(topic)
		return nil
	})
	return session, err
}

func (s *Swarm) _join(topic keyed.Key) *DiscoverySession {
	d, ok := s.discoveries.Get(topic)
	if !ok {
		d = &discovery{topic: topic}
		s.discoveries.Set(topic, d)
		s.topics.Add(topic)
		s.logger.Info("joined topic", "topic", topic.String())
		s._announce()
		for _, info := range s.registry.All() {
			s._connect(info)
		}
	}
	session := &DiscoverySession{swarm: s, discovery: d}
	d.sessions = append(d.sessions, session)
	return session
}

// Leave destroys every session on topic.
func (s *Swarm) Leave(topic keyed.Key) error {
	return s.run(func() error {
		if d, ok := s.discoveries.Get(topic); ok {
			s._unsubscribe(d)
		}
		return nil
	})
}

// Destroy ends the session. Destroying the last session on a topic
// announces the departure and removes the subscription. Destroying
// twice, or after the swarm closed, is a no-op.
func (d *DiscoverySession) Destroy() error {
	s := d.swarm
	phony.Block(s, func() {
		if d.destroyed || s.closed {
			return
		}
		d.destroyed = true
		shared := d.discovery
		for index, session := range shared.sessions {
			if session == d {
				shared.sessions = append(shared.sessions[:index:index], shared.sessions[index+1:]...)
				break
			}
		}
		if len(shared.sessions) == 0 {
			s._unsubscribe(shared)
		}
	})
	return nil
}

// _unsubscribe removes the subscription and sends one final
// announcement without its topic.
func (s *Swarm) _unsubscribe(d *discovery) {
	d.end()
	s.discoveries.Delete(d.topic)
	s.topics.Delete(d.topic)
	s.logger.Info("left topic", "topic", d.topic.String())
	s._announce()
}

// Refresh re-announces the swarm's topics now.
func (d *DiscoverySession) Refresh() error {
	s := d.swarm
	return s.run(func() error {
		if d.destroyed {
			return ErrSessionDestroyed
		}
		s._announce()
		return nil
	})
}

// Flushed waits for the swarm's discovery effort to settle. See
// Swarm.Flush.
func (d *DiscoverySession) Flushed(ctx context.Context) (bool, error) {
	return d.swarm.Flush(ctx)
}
