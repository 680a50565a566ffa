// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Command mtproto-session-demo dials one data center, runs (or resumes) the
// auth-key handshake, and persists the resulting session to disk. It exists
// to exercise the library end to end; it is not a Telegram client.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gomtp/mtproto"
	"github.com/gomtp/mtproto/internal/hostconfig"
	"github.com/gomtp/mtproto/internal/mode"
	"github.com/gomtp/mtproto/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mtproto-session-demo:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := hostconfig.Load()
	if err != nil {
		return err
	}

	client, err := mtproto.NewClient(mtproto.Config{
		ServerHost:     cfg.ServerHost,
		ProxyURL:       cfg.ProxyURL,
		Mode:           mode.Abridged,
		SessionStorage: session.NewFromFile(cfg.SessionFile),
	})
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer client.Disconnect()

	fmt.Println("session established, saved to", cfg.SessionFile)

	go func() {
		for w := range client.Warnings {
			fmt.Fprintln(os.Stderr, "warning:", w)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-client.Updates:
			if !ok {
				return nil
			}
			fmt.Printf("update: %T\n", u)
		}
	}
}
