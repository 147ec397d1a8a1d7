package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/formcoach/internal/pose"
)

// SocketSource is the live stream: a pose detector process connects to a
// unix socket and writes one JSON frame per line. Readers block while the
// consumer is busy, so frames are processed strictly one at a time.
type SocketSource struct {
	listener net.Listener
	frames   chan pose.Frame
	done     chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewSocketSource(socketAddrDir, socketFileName string) (*SocketSource, error) {
	socket := filepath.Join(socketAddrDir, socketFileName)
	// a socket file left over by a crashed run blocks the bind
	if err := os.Remove(socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", socket, err)
	}

	listener, err := net.Listen("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("binding to unix socket %s: %w", socket, err)
	}
	if err := os.Chmod(socket, os.ModeSocket|0666); err != nil {
		_ = listener.Close()
		return nil, err
	}

	s := &SocketSource{
		listener: listener,
		frames:   make(chan pose.Frame),
		done:     make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return s, nil
}

func (s *SocketSource) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *SocketSource) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Errorf("pose socket conn accept: %s", err)
			}
			return
		}
		log.Debugf("pose socket got new conn: %s", conn.RemoteAddr().String())

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.readConn(conn)
	}
}

func (s *SocketSource) readConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame, err := DecodeFrame(line)
		if err != nil {
			log.Warnf("pose socket: %s", err)
			continue
		}

		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-s.done:
		default:
			log.Errorf("pose socket read: %s", err)
		}
	}
}

func (s *SocketSource) Next(ctx context.Context) (pose.Frame, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.done:
		return pose.Frame{}, io.EOF
	case <-ctx.Done():
		return pose.Frame{}, ctx.Err()
	}
}

// Close stops accepting, drops open detector connections and waits for
// all reader goroutines.
func (s *SocketSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.listener.Close()

		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
	})
	return err
}
