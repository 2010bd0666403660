/*
Package event provides typed observer lists with explicit subscription handles.
A Once subscription detaches itself before its callback runs, so the cleanup
contract of a one-shot listener is enforced here instead of at every call site.
*/
package event
