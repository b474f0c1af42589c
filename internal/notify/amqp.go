package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"go-etl-pipeline/internal/model"
)

// amqpMessage is the body published for each alert.
type amqpMessage struct {
	Alert
	Text      string    `json:"text"`
	ImageName string    `json:"image_name"`
	Image     []byte    `json:"image"`
	SentAt    time.Time `json:"sent_at"`
}

// AMQP publishes alerts to a durable queue, dialing a fresh connection per alert.
type AMQP struct {
	url   string
	queue string
	image Image
}

func NewAMQP(url, queue string, image Image) *AMQP {
	return &AMQP{url: url, queue: queue, image: image}
}

func (a *AMQP) Notify(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(amqpMessage{
		Alert:     alert,
		Text:      alert.Text(),
		ImageName: a.image.Name,
		Image:     a.image.Data,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return model.NotifierFailure("amqp encode", err)
	}

	conn, err := amqp.Dial(a.url)
	if err != nil {
		return model.NotifierFailure("amqp dial", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return model.NotifierFailure("amqp channel", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(a.queue, true, false, false, false, nil); err != nil {
		return model.NotifierFailure("amqp declare", err)
	}

	err = ch.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    alert.RunID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return model.NotifierFailure("amqp publish", err)
	}
	return nil
}
