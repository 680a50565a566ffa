// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package hostconfig reads example-command configuration from the
// environment, loading a .env file first if one is present. Grounded on the
// env_loader.go pattern used throughout the qwe317149766-tiktok_go_play
// examples (godotenv.Overload/Load before os.Getenv reads).
package hostconfig

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config is what cmd/mtproto-session-demo needs to open one connection.
type Config struct {
	ServerHost  string
	ProxyURL    string
	SessionFile string
	DCID        int32
}

// Load reads .env (if present in the working directory; missing is not an
// error) and then the MTPROTO_* environment variables, applying defaults for
// anything unset except SessionFile, which is required.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional: missing .env is not fatal

	sessionFile := os.Getenv("MTPROTO_SESSION_FILE")
	if sessionFile == "" {
		return nil, errors.New("hostconfig: MTPROTO_SESSION_FILE is required")
	}

	host := os.Getenv("MTPROTO_SERVER_HOST")
	if host == "" {
		host = "149.154.167.51:443" // DC2, the default production test endpoint
	}

	dcID := int32(2)
	if raw := os.Getenv("MTPROTO_DC_ID"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.Wrap(err, "hostconfig: parsing MTPROTO_DC_ID")
		}
		dcID = int32(n)
	}

	return &Config{
		ServerHost:  host,
		ProxyURL:    os.Getenv("MTPROTO_PROXY_URL"),
		SessionFile: sessionFile,
		DCID:        dcID,
	}, nil
}
