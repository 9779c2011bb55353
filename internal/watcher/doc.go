// Package watcher owns the filesystem watch for one relay session.
//
// A Session registers every directory under its root with fsnotify, adds
// directories as they appear, normalizes notifications into change events and
// hands them to a bounded queue. When the queue is full the producer blocks
// rather than dropping events. Cancelling the session context stops the
// producer; that is the normal way a session ends.
package watcher
