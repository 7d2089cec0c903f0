package transport

import (
	"errors"
	"io"
	"net"
	"sync"
)

// Channel identifies one of the sockets a session reads from.
type Channel int

const (
	TCP Channel = iota
	UDP
	Broadcast

	numChannels
)

func (c Channel) String() string {
	switch c {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	case Broadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

const (
	readBufSize = 64 * 1024
	dataChSize  = 64
)

// reader owns the goroutine that moves bytes from one socket into
// channels. It never decodes; that happens on the polling goroutine.
type reader struct {
	ch     Channel
	conn   io.ReadCloser
	dataCh chan []byte
	errCh  chan error
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func newReader(ch Channel, conn io.ReadCloser) *reader {
	return &reader{
		ch:     ch,
		conn:   conn,
		dataCh: make(chan []byte, dataChSize),
		errCh:  make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (r *reader) start(notify chan<- struct{}) {
	r.wg.Add(1)
	go r.readLoop(notify)
}

func (r *reader) readLoop(notify chan<- struct{}) {
	defer r.wg.Done()
	buf := make([]byte, readBufSize)
	for {
		n, err := r.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case r.dataCh <- data:
			case <-r.done:
				return
			}
			signal(notify)
		}
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}
			r.errCh <- err
			signal(notify)
			return
		}
	}
}

// close stops the goroutine and closes the socket. It is safe to call more
// than once; only the first call reports the close error.
func (r *reader) close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.conn.Close()
		r.wg.Wait()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

func signal(notify chan<- struct{}) {
	select {
	case notify <- struct{}{}:
	default:
	}
}
