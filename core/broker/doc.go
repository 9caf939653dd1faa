// Package broker abstracts the message broker that carries catalogue change
// batches between pipeline stages.
//
// A Consumer delivers messages from a set of topics one at a time; every
// Delivery must be settled with Ack or Nack. A Publisher sends message bodies
// to a topic. Two drivers are provided:
//
//   - amqp: RabbitMQ (streadway/amqp). Each topic is a durable queue; when an
//     exchange is configured the queue is bound to it with the topic as the
//     routing key. With broker.retry_delay_seconds set, a Nacked message is
//     dead-lettered to "<topic>.retry" and returns to the topic when its TTL
//     expires. With zero, Nack requeues the message at once.
//   - pubsub: Google Cloud Pub/Sub. Each topic is consumed through the
//     subscription "<subscription>-<topic>". Nack triggers redelivery.
//
// Errors returned by both drivers carry core/failure broker classes.
//
// # Usage
//
//	consumer, publisher, err := broker.New(ctx, cfg.Broker, []string{"transformed"}, log)
//	d, err := consumer.Receive(ctx)
//	_ = d.Ack()
package broker
