/*
Package bridge carries ports between processes over a message broker.

Every endpoint owns an inbox subject <prefix>.<endpoint>. A port is a pair of
routes sharing one id: the opener publishes to the responder's inbox, the
responder answers on the inbox named in the open frame. Frames are JSON:

	open   announces a port; carries its name, the opener's inbox and sender
	msg    carries one posted value
	close  disconnects the peer; an error marks an abnormal disconnect

The broker must preserve publish order per subject. Brokers are plugged in
through the Broker interface; see the nats, rabbitmq and kafka adapters.
*/
package bridge
