//go:build linux

package intercept

import (
	"github.com/getlantern/errors"
	"golang.org/x/sys/unix"
)

// Sender writes complete IP packets to the network through raw sockets. Every packet carries the
// socket mark so that the queue rules can let it pass.
type Sender struct {
	fd4 int
	fd6 int
}

func NewSender(mark int) (*Sender, error) {
	fd4, err := rawSocket(unix.AF_INET, unix.IPPROTO_IP, unix.IP_HDRINCL, mark)
	if err != nil {
		return nil, err
	}

	// IPv6 may be disabled on the host; IPv4 injection still works without it.
	fd6, err := rawSocket(unix.AF_INET6, unix.IPPROTO_IPV6, unix.IPV6_HDRINCL, mark)
	if err != nil {
		fd6 = -1
	}

	return &Sender{fd4: fd4, fd6: fd6}, nil
}

func rawSocket(family, level, hdrincl, mark int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, level, hdrincl, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, mark); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

// Send writes pkt, which must start with an IPv4 or IPv6 header, to its destination.
func (s *Sender) Send(pkt []byte) error {
	sa, err := destination(pkt)
	if err != nil {
		return err
	}

	fd := s.fd4
	if _, ok := sa.(*unix.SockaddrInet6); ok {
		if s.fd6 < 0 {
			return errors.New("no IPv6 raw socket available")
		}
		fd = s.fd6
	}

	return unix.Sendto(fd, pkt, 0, sa)
}

func (s *Sender) Close() error {
	err := unix.Close(s.fd4)
	if s.fd6 >= 0 {
		if err6 := unix.Close(s.fd6); err == nil {
			err = err6
		}
	}
	return err
}

// destination extracts the destination address from an IP header.
func destination(pkt []byte) (unix.Sockaddr, error) {
	if len(pkt) == 0 {
		return nil, errors.New("empty packet")
	}

	switch pkt[0] >> 4 {
	case 4:
		if len(pkt) < 20 {
			return nil, errors.New("short IPv4 header (%d bytes)", len(pkt))
		}
		sa := &unix.SockaddrInet4{}
		copy(sa.Addr[:], pkt[16:20])
		return sa, nil
	case 6:
		if len(pkt) < 40 {
			return nil, errors.New("short IPv6 header (%d bytes)", len(pkt))
		}
		sa := &unix.SockaddrInet6{}
		copy(sa.Addr[:], pkt[24:40])
		return sa, nil
	default:
		return nil, errors.New("unknown IP version %d", pkt[0]>>4)
	}
}
