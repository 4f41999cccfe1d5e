// Package station manages the radio's client-mode connection to the user's
// network, including bounded reconnect with exponential backoff.
package station
