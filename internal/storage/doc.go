// Package storage persists participant profiles (affiliation, class, display
// name) so a Telegram user does not have to pick a side again after a restart.
//
// Chat messages are never stored.
package storage
