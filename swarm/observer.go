// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"github.com/Arceliar/phony"

	"github.com/bureau-foundation/rtcswarm/peer"
)

// Observer receives swarm events. Methods are called one at a time, in
// event order, on a goroutine owned by the swarm; they should return
// promptly.
type Observer interface {
	// OnPeer reports a newly discovered identity.
	OnPeer(info *peer.Info)

	// OnConnection reports a newly opened connection.
	OnConnection(conn *Connection, info *peer.Info)

	// OnBootstrap reports a successful connection to a bootstrap relay.
	OnBootstrap(node BootstrapNode)
}

// ObserverFuncs adapts functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Peer       func(info *peer.Info)
	Connection func(conn *Connection, info *peer.Info)
	Bootstrap  func(node BootstrapNode)
}

func (f ObserverFuncs) OnPeer(info *peer.Info) {
	if f.Peer != nil {
		f.Peer(info)
	}
}

func (f ObserverFuncs) OnConnection(conn *Connection, info *peer.Info) {
	if f.Connection != nil {
		f.Connection(conn, info)
	}
}

func (f ObserverFuncs) OnBootstrap(node BootstrapNode) {
	if f.Bootstrap != nil {
		f.Bootstrap(node)
	}
}

// observers fans events out on its own actor so a slow observer never
// runs on the swarm actor.
type observers struct {
	phony.Inbox
	nextID uint64
	list   []registeredObserver
}

type registeredObserver struct {
	id       uint64
	observer Observer
}

func (o *observers) add(observer Observer) func() {
	var id uint64
	phony.Block(o, func() {
		o.nextID++
		id = o.nextID
		o.list = append(o.list, registeredObserver{id: id, observer: observer})
	})
	return func() {
		o.Act(nil, func() {
			for index, registered := range o.list {
				if registered.id == id {
					o.list = append(o.list[:index:index], o.list[index+1:]...)
					return
				}
			}
		})
	}
}

// emit queues deliver without applying backpressure to the caller, so
// an observer may block on the swarm without deadlocking it.
func (o *observers) emit(deliver func(Observer)) {
	o.Act(nil, func() {
		for _, registered := range o.list {
			deliver(registered.observer)
		}
	})
}
