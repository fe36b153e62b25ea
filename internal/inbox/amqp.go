package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPTransport adapts a RabbitMQ broker to the Transport interface.  A
// bridge process feeds platform private messages into the inbound queue as
// JSON; replies are published persistently to the outbound queue for the
// bridge to deliver.  Consumption uses manual acks: MarkRead acks the
// delivery, and anything unacked when the connection drops is redelivered
// on the next stream, which gives the at-least-once behavior the
// dispatcher's ledger check is built for.
type AMQPTransport struct {
	url      string
	inQueue  string
	outQueue string

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	pending map[string]amqp.Delivery
}

// NewAMQPTransport returns an AMQPTransport for the given broker URL and
// queue names.  No connection is opened until Stream is called.
func NewAMQPTransport(url, inQueue, outQueue string) *AMQPTransport {
	return &AMQPTransport{
		url:      url,
		inQueue:  inQueue,
		outQueue: outQueue,
		pending:  make(map[string]amqp.Delivery),
	}
}

// Stream connects to the broker, declares the durable queues and starts
// consuming.  The returned channel closes when the connection is lost.
func (t *AMQPTransport) Stream(ctx context.Context) (<-chan Message, error) {
	conn, err := amqp.Dial(t.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel open: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		log.Printf("inbox: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(t.inQueue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare %s: %w", t.inQueue, err)
	}
	if _, err := ch.QueueDeclare(t.outQueue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare %s: %w", t.outQueue, err)
	}
	deliveries, err := ch.Consume(t.inQueue, "", false, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp consume: %w", err)
	}

	t.mu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.conn = conn
	t.ch = ch
	t.pending = make(map[string]amqp.Delivery)
	t.mu.Unlock()

	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal(d.Body, &msg); err != nil || msg.ID == "" {
					log.Printf("inbox: dropping malformed delivery: %v", err)
					_ = d.Nack(false, false) // do not requeue, it will never parse
					continue
				}
				t.mu.Lock()
				t.pending[msg.ID] = d
				t.mu.Unlock()
				select {
				case out <- msg:
				case <-ctx.Done():
					_ = conn.Close()
					return
				}
			}
		}
	}()
	return out, nil
}

// Reply publishes the reply body to the outbound queue.  The reply id is
// derived from the original message id, so a redelivered message that is
// answered again produces the same id and the outbound ledger's conflict
// check suppresses the duplicate record.
func (t *AMQPTransport) Reply(ctx context.Context, orig Message, body string) (SentMessage, error) {
	sent := SentMessage{
		ID:      "re-" + orig.ID,
		Author:  orig.Author,
		Body:    body,
		Created: time.Now().UTC(),
	}
	raw, err := json.Marshal(sent)
	if err != nil {
		return SentMessage{}, err
	}
	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()
	if ch == nil {
		return SentMessage{}, fmt.Errorf("inbox: not connected")
	}
	err = ch.PublishWithContext(ctx,
		"",         // default exchange
		t.outQueue, // routing key = queue name
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    sent.Created,
			Body:         raw,
		})
	if err != nil {
		return SentMessage{}, fmt.Errorf("amqp publish: %w", err)
	}
	return sent, nil
}

// MarkRead acks the delivery behind the message so the broker stops
// redelivering it.  Acking an id that is no longer pending (connection
// already cycled) is a no-op; the message will come back and the ledger
// check will skip it.
func (t *AMQPTransport) MarkRead(ctx context.Context, orig Message) error {
	t.mu.Lock()
	d, ok := t.pending[orig.ID]
	if ok {
		delete(t.pending, orig.ID)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return d.Ack(false)
}

// Close tears down the broker connection.
func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.ch = nil
	return err
}
