package service

// This file publishes domain events to RabbitMQ.  Errors are logged and
// returned so callers can ignore failures without interrupting the main
// request flow: the committed waitlist state is the source of truth and
// downstream notification is best-effort at-least-once.

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/event-waitlist/internal/queue"
)

// BridgePublisher emits outbound bridge messages.  Split out as an
// interface so service tests can capture published messages.
type BridgePublisher interface {
	PublishInvitationCreated(ctx context.Context, msg q.WaitlistInvitationMessage) error
	PublishAutoConfirm(ctx context.Context, msg q.AutoConfirmMessage) error
	PublishWaitlistNotification(ctx context.Context, msg q.WaitlistNotificationMessage) error
}

// AMQPPublisher publishes to RabbitMQ.  Each publish dials a fresh
// connection, declares the durable target queue (idempotent) and sends a
// persistent JSON message.
type AMQPPublisher struct {
	URL string
}

// NewAMQPPublisher returns a publisher bound to the given broker URL.
func NewAMQPPublisher(url string) *AMQPPublisher { return &AMQPPublisher{URL: url} }

// PublishInvitationCreated asks the invitation domain to materialize a
// WAITLIST-status invitation.
func (p *AMQPPublisher) PublishInvitationCreated(ctx context.Context, msg q.WaitlistInvitationMessage) error {
	return p.publish(ctx, q.QueueWaitlistInvitationCreated, msg)
}

// PublishAutoConfirm promotes a waitlist entrant to a confirmed invitation
// downstream.
func (p *AMQPPublisher) PublishAutoConfirm(ctx context.Context, msg q.AutoConfirmMessage) error {
	return p.publish(ctx, q.QueueInvitationAutoConfirm, msg)
}

// PublishWaitlistNotification notifies an entrant that a spot was offered.
func (p *AMQPPublisher) PublishWaitlistNotification(ctx context.Context, msg q.WaitlistNotificationMessage) error {
	return p.publish(ctx, q.QueueWaitlistNotification, msg)
}

func (p *AMQPPublisher) publish(ctx context.Context, queueName string, payload any) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // autoDelete
		false,     // exclusive
		false,     // noWait
		nil,       // args
	); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("rabbitmq: marshal message failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		pub,
	); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}

	return nil
}
