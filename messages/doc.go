/*
Package messages implements one-shot request/response messaging over named ports.
An initiator opens a port named after the request type, posts one payload and
waits for exactly one reply. A responder registered in a Registry accepts ports
with a matching name, runs the handler once and tears the port down.
*/
package messages
