// Package smtp provides the mail transport used by the sender worker and the
// synchronous verification-email path.
package smtp

import "io"

// Client is the subset of the SMTP protocol the senders need.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// TransportInterface abstracts the SMTP transport for tests.
type TransportInterface interface {
	Connect() (Client, error)
	GetSMTPUser() string
}
