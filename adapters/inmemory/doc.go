/*
Package inmemory provides an in-process host for the port bus.
A Hub runs a single event loop that delivers every port event in order, the
way a browser delivers extension events. Each Endpoint is one execution
context and satisfies port.Host. The package also ships in-memory storage
areas, a tab set and a mutation feed for the sibling helpers.
*/
package inmemory
