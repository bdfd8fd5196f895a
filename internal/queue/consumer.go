package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/cinecore/movie-booking/internal/model"
)

const paymentQueueName = "payment.outcome"

// OutcomeHandler is what the consumer feeds decoded payment outcomes to;
// in production it is the payment reconciler.  Returning an error nacks
// the delivery for redelivery; returning nil acks it.
type OutcomeHandler func(ctx context.Context, ev model.PaymentOutcome) error

// StartPaymentConsumer connects to RabbitMQ, declares the durable
// payment.outcome queue and consumes settlement messages, handing each
// decoded outcome to the handler.  It runs a reconnect loop with
// exponential backoff and returns only when ctx is cancelled.
// Malformed messages are rejected without requeue so a poison message
// cannot wedge the queue.
func StartPaymentConsumer(ctx context.Context, url string, handle OutcomeHandler) error {
    backoff := time.Second
    for {
        if err := ctx.Err(); err != nil {
            return err
        }
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Printf("payment-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            select {
            case <-ctx.Done():
                return ctx.Err()
            case <-time.After(backoff):
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        if err := consumeLoop(ctx, conn, handle); err != nil {
            log.Printf("payment-consumer: consume loop ended: %v; reconnecting", err)
            _ = conn.Close()
            select {
            case <-ctx.Done():
                return ctx.Err()
            case <-time.After(2 * time.Second):
            }
        }
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, handle OutcomeHandler) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Printf("payment-consumer: set QoS failed: %v", err)
    }

    if _, err := ch.QueueDeclare(paymentQueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.Consume(paymentQueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            ev, err := decodeOutcome(d.Body)
            if err != nil {
                log.Printf("payment-consumer: dropping malformed message: %v", err)
                _ = d.Nack(false, false) // reject, no requeue
                continue
            }
            if err := handle(ctx, ev); err != nil {
                log.Printf("payment-consumer: handle outcome for %s failed: %v", ev.BookingID, err)
                _ = d.Nack(false, true) // infrastructure failure, redeliver
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// decodeOutcome unmarshals and validates one gateway message.
func decodeOutcome(body []byte) (model.PaymentOutcome, error) {
    var raw PaymentOutcomeEvent
    if err := json.Unmarshal(body, &raw); err != nil {
        return model.PaymentOutcome{}, fmt.Errorf("unmarshal: %w", err)
    }
    if raw.BookingID == "" {
        return model.PaymentOutcome{}, errors.New("missing booking_id")
    }
    result := model.PaymentResult(raw.Result)
    if !result.Valid() {
        return model.PaymentOutcome{}, fmt.Errorf("unknown result %q", raw.Result)
    }
    occurredAt := time.Now().UTC()
    if raw.OccurredAt != "" {
        t, err := time.Parse(time.RFC3339, raw.OccurredAt)
        if err != nil {
            return model.PaymentOutcome{}, fmt.Errorf("bad occurred_at: %w", err)
        }
        occurredAt = t
    }
    return model.PaymentOutcome{
        BookingID:   raw.BookingID,
        Result:      result,
        AmountCents: raw.AmountCents,
        OccurredAt:  occurredAt,
    }, nil
}
