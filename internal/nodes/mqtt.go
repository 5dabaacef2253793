package nodes

import (
	"context"
	"fmt"

	"github.com/nerrad567/chardev-core/internal/chardev"
)

// MessagePublisher is the subset of the MQTT client used to announce nodes.
// *mqtt.Client satisfies it.
type MessagePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger defines the logging interface used by MQTTPublisher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// MQTTPublisher announces classes and nodes as retained MQTT messages and
// mirrors them in a Table for local lookups.
//
// A class or node is only kept in the table once its announcement has been
// accepted by the broker. Withdrawals always update the table, even when the
// empty retained message cannot be delivered.
type MQTTPublisher struct {
	client   MessagePublisher
	table    *Table
	topics   Topics
	encoding Encoding
	qos      byte
	logger   Logger
}

// NewMQTTPublisher creates a publisher that records into table. A nil table
// gets a fresh one.
func NewMQTTPublisher(client MessagePublisher, table *Table, topics Topics, enc Encoding, qos byte) *MQTTPublisher {
	if table == nil {
		table = NewTable()
	}
	return &MQTTPublisher{
		client:   client,
		table:    table,
		topics:   topics,
		encoding: enc,
		qos:      qos,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (p *MQTTPublisher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// Table returns the backing table.
func (p *MQTTPublisher) Table() *Table { return p.table }

// RegisterClass implements chardev.Publisher.
func (p *MQTTPublisher) RegisterClass(ctx context.Context, class string, count int) error {
	rec, err := p.table.registerClass(class, count)
	if err != nil {
		return err
	}
	if err := p.announce(ctx, p.topics.Class(class), rec); err != nil {
		p.table.forget(class, "")
		return fmt.Errorf("announcing class %s: %w", class, err)
	}
	p.logger.Debug("device class announced", "class", class, "count", count)
	return nil
}

// PublishNode implements chardev.Publisher.
func (p *MQTTPublisher) PublishNode(ctx context.Context, node chardev.Node, attrs chardev.AttrFunc) error {
	entry, err := p.table.publishNode(node, attrs)
	if err != nil {
		return err
	}
	if err := p.announce(ctx, p.topics.Node(node.Class, node.Name), entry); err != nil {
		p.table.forget(node.Class, node.Name)
		return fmt.Errorf("announcing node %s: %w", node.Name, err)
	}
	p.logger.Debug("device node announced", "name", node.Name, "mode", entry.Mode())
	return nil
}

// UnpublishNode implements chardev.Publisher.
func (p *MQTTPublisher) UnpublishNode(ctx context.Context, node chardev.Node) error {
	if err := p.table.UnpublishNode(ctx, node); err != nil {
		return err
	}
	if err := p.clear(ctx, p.topics.Node(node.Class, node.Name)); err != nil {
		p.logger.Warn("device node withdrawal not delivered", "name", node.Name, "error", err)
		return fmt.Errorf("withdrawing node %s: %w", node.Name, err)
	}
	return nil
}

// UnregisterClass implements chardev.Publisher.
func (p *MQTTPublisher) UnregisterClass(ctx context.Context, class string) error {
	if err := p.table.UnregisterClass(ctx, class); err != nil {
		return err
	}
	if err := p.clear(ctx, p.topics.Class(class)); err != nil {
		p.logger.Warn("device class withdrawal not delivered", "class", class, "error", err)
		return fmt.Errorf("withdrawing class %s: %w", class, err)
	}
	return nil
}

func (p *MQTTPublisher) announce(ctx context.Context, topic string, record any) error {
	payload, err := p.encoding.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.client.Publish(topic, payload, p.qos, true)
}

// clear removes the broker's retained copy of topic.
func (p *MQTTPublisher) clear(ctx context.Context, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.client.Publish(topic, nil, p.qos, true)
}
