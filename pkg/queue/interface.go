package queue

import "errors"

var ErrFull = errors.New("queue is full")

// Request asks for Source to be re-encoded and written to Dest.
type Request struct {
	Source  string
	Dest    string
	Quality int
}

type Queue interface {
	Start()
	Stop()
	Add(req *Request) (chan []byte, chan error, error)
}
