// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/xelaj/go-dry/ioutil"
	"golang.org/x/net/proxy"

	"github.com/gomtp/mtproto/internal/mode"
)

const defaultTimeout = 65 * time.Second // 60s is the maximum gap without pings

type tcpTransport struct {
	conn         net.Conn
	cancelReader *ioutil.CancelableReader
	timeout      time.Duration
	mode         mode.Variant
}

func dialTCP(cfg Config) (Transport, error) {
	d := net.Dialer{Timeout: 15 * time.Second, KeepAlive: 15 * time.Second}

	ctx := cfg.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var conn net.Conn
	var err error
	if cfg.ProxyURL != "" {
		u, perr := url.Parse(cfg.ProxyURL)
		if perr != nil {
			return nil, errors.Wrap(perr, "parsing proxy url")
		}
		dialer, derr := proxy.FromURL(u, &d)
		if derr != nil {
			return nil, errors.Wrap(derr, "building proxy dialer")
		}
		conn, err = dialer.Dial("tcp", cfg.Host)
	} else {
		conn, err = d.DialContext(ctx, "tcp", cfg.Host)
	}
	if err != nil {
		return nil, errors.Wrap(err, "dialing tcp")
	}

	t := &tcpTransport{
		conn:         conn,
		cancelReader: ioutil.NewCancelableReader(ctx, conn),
		timeout:      defaultTimeout,
		mode:         cfg.Mode,
	}

	if _, err := conn.Write(mode.Handshake(cfg.Mode)); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "sending framing handshake")
	}

	return t, nil
}

func (t *tcpTransport) Close() error { return t.conn.Close() }

func (t *tcpTransport) WriteFrame(payload []byte) error {
	framed, err := mode.Frame(t.mode, payload)
	if err != nil {
		return errors.Wrap(err, "framing payload")
	}
	_, err = t.conn.Write(framed)
	return errors.Wrap(err, "writing frame")
}

func (t *tcpTransport) ReadFrame() ([]byte, error) {
	if t.timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			return nil, errors.Wrap(err, "setting read deadline")
		}
	}

	switch t.mode {
	case mode.Abridged:
		return t.readAbridged()
	case mode.Intermediate:
		return t.readIntermediate()
	default:
		return nil, errors.New("tcp transport: unknown framing mode")
	}
}

func (t *tcpTransport) readIntermediate() ([]byte, error) {
	var lenBuf [4]byte
	if err := t.readFull(lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if err := t.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *tcpTransport) readAbridged() ([]byte, error) {
	var first [1]byte
	if err := t.readFull(first[:]); err != nil {
		return nil, err
	}

	var words int
	if first[0] < 0x7f {
		words = int(first[0])
	} else {
		var rest [3]byte
		if err := t.readFull(rest[:]); err != nil {
			return nil, err
		}
		words = int(rest[0]) | int(rest[1])<<8 | int(rest[2])<<16
	}

	buf := make([]byte, words*4)
	if err := t.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *tcpTransport) readFull(buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := t.cancelReader.Read(buf[read:])
		read += n
		if err != nil {
			return translateReadErr(err)
		}
	}
	return nil
}

func translateReadErr(err error) error {
	if e, ok := err.(*net.OpError); ok && e.Err.Error() == "i/o timeout" {
		return errors.Wrap(err, "read timed out, connection must be reopened")
	}
	switch err {
	case io.EOF:
		return err
	default:
		return errors.Wrap(err, "reading from tcp connection")
	}
}
