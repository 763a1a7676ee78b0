package nats

import (
	natsgo "github.com/nats-io/nats.go"

	"dimas/pkg/transport"
)

// publisher is a held NATS publish handle bound to one subject.
type publisher struct {
	nc       *natsgo.Conn
	subject  string
	selector string
	opts     transport.PublisherOptions
}

func (p *publisher) Put(payload []byte) error {
	return p.nc.Publish(p.subject, payload)
}

func (p *publisher) Delete() error {
	return p.nc.Publish(p.subject+"."+deleteToken, nil)
}

func (p *publisher) KeyExpr() string { return p.selector }

func (p *publisher) Undeclare() error { return nil }
