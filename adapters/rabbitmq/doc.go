/*
Package rabbitmq carries bridge frames over RabbitMQ.
Frames are published to the default exchange with the subject as routing key,
and every subscription consumes an exclusive auto-delete queue named after its
subject. NewWithAMQPConn returns an adapter whose connection reconnects with
backoff and re-declares live subscriptions.
*/
package rabbitmq
