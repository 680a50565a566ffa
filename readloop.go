// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

package mtproto

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/gomtp/mtproto/internal/encoding/tl"
	"github.com/gomtp/mtproto/internal/mtproto/messages"
	"github.com/gomtp/mtproto/internal/mtproto/objects"
)

func (c *Client) startReadingResponses(ctx context.Context) {
	c.routineswg.Add(1)
	go func() {
		defer c.routineswg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := c.readFrame(); err != nil {
				switch {
				case errors.Is(err, context.Canceled):
					return
				case errors.Is(err, io.EOF):
					go c.recoverFromReadError(ctx, err)
					return
				default:
					c.warnError(errors.Wrap(err, "reading frame"))
				}
			}
		}
	}()
}

func (c *Client) recoverFromReadError(ctx context.Context, cause error) {
	if err := c.Reconnect(ctx); err != nil {
		c.warnError(errors.Wrap(err, "reconnecting after "+cause.Error()))
	}
}

func (c *Client) startPinging(ctx context.Context) {
	c.routineswg.Add(1)
	go func() {
		defer c.routineswg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.ping(75); err != nil {
					go c.recoverFromReadError(ctx, err)
					return
				}
			}
		}
	}()
}

func (c *Client) readFrame() error {
	c.transportMu.Lock()
	t := c.transport
	c.transportMu.Unlock()
	if t == nil {
		return errors.New("mtproto: not connected")
	}

	raw, err := t.ReadFrame()
	if err != nil {
		return err
	}

	if !c.encrypted {
		plain, err := messages.DecodePlain(raw)
		if err != nil {
			return errors.Wrap(err, "decoding plaintext handshake frame")
		}
		ch := c.handshakeChannel()
		select {
		case ch <- plain.Body:
		default:
		}
		return nil
	}

	env, err := messages.DecodeEncrypted(raw, c.authKey, false)
	if err != nil {
		return errors.Wrap(err, "decoding encrypted frame")
	}
	return c.dispatchBody(env.MsgID, env.SeqNo, env.Body)
}

func (c *Client) dispatchBody(msgID int64, seqNo int32, body []byte) error {
	obj, err := tl.DecodeUnknownObjectBytes(body)
	if err != nil {
		return errors.Wrap(err, "decoding message body")
	}
	if err := c.dispatchObject(msgID, obj); err != nil {
		return err
	}

	if seqNo&1 != 0 {
		if err := c.sendAck([]int64{msgID}); err != nil {
			c.warnError(errors.Wrap(err, "sending ack"))
		}
	}
	return nil
}

func (c *Client) dispatchObject(msgID int64, obj tl.Object) error {
	switch v := obj.(type) {
	case *objects.MessageContainer:
		for _, item := range v.Items {
			inner, err := tl.DecodeUnknownObjectBytes(item.Body)
			if err != nil {
				return errors.Wrap(err, "decoding container item")
			}
			if err := c.dispatchObject(item.MsgID, inner); err != nil {
				return err
			}
		}
		return nil

	case *objects.BadServerSalt:
		c.serverSalt = v.NewSalt
		c.deliverAndRetry(v.BadMsgID)
		return c.SaveSession()

	case *objects.BadMsgNotification:
		if err := BadMsgErrorFromNative(v); err != nil {
			c.warnError(err)
			c.failPending(v.BadMsgID, err)
		} else {
			c.adjustClockFromBadMsg(msgID)
			c.deliverAndRetry(v.BadMsgID)
		}
		return nil

	case *objects.NewSessionCreated:
		c.serverSalt = v.ServerSalt
		return c.SaveSession()

	case *objects.RpcResult:
		c.deliver(v.ReqMsgID, v.Obj)
		return nil

	case *objects.Pong:
		c.deliver(v.MsgID, v)
		return nil

	case *objects.MsgsAck:
		return nil

	default:
		for _, h := range c.serverRequestHandlers {
			if h(v) {
				return nil
			}
		}
		select {
		case c.Updates <- v:
		default:
			c.warnError(errors.New("mtproto: dropped update, channel full"))
		}
		return nil
	}
}

func (c *Client) deliver(msgID int64, obj tl.Object) {
	c.pendingMu.Lock()
	pr, ok := c.pending[msgID]
	c.pendingMu.Unlock()
	if ok {
		pr.ch <- obj
	}
}

func (c *Client) failPending(msgID int64, err error) {
	c.pendingMu.Lock()
	pr, ok := c.pending[msgID]
	c.pendingMu.Unlock()
	if ok {
		pr.ch <- &objects.RpcError{ErrorCode: 0, ErrorMessage: err.Error()}
	}
}

// deliverAndRetry resends the request that was outstanding under oldMsgID
// with a fresh msg_id, moving its pending-table entry (and so the caller's
// still-blocked reply channel) to the new id. Used for both bad_server_salt
// and the clock-skew bad_msg_notification codes, which both call for
// resending the offending request rather than failing it.
func (c *Client) deliverAndRetry(oldMsgID int64) {
	c.pendingMu.Lock()
	pr, ok := c.pending[oldMsgID]
	if ok {
		delete(c.pending, oldMsgID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}

	newMsgID := c.nextMsgID()
	seqNo := c.nextSeqNo(true)

	c.pendingMu.Lock()
	c.pending[newMsgID] = pr
	c.pendingMu.Unlock()

	if err := c.sendEncrypted(newMsgID, seqNo, pr.data.Encode()); err != nil {
		c.warnError(errors.Wrap(err, "resending request after bad_server_salt/bad_msg_notification"))
	}
}

// adjustClockFromBadMsg resyncs timeDelta from the server-generated msg_id
// of the message that carried the bad_msg_notification.
func (c *Client) adjustClockFromBadMsg(serverMsgID int64) {
	serverSeconds := serverMsgID >> 32
	localSeconds := time.Now().Unix()
	c.msgIDMu.Lock()
	c.timeDelta = serverSeconds - localSeconds
	c.msgIDMu.Unlock()
}
