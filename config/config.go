// config.go - session configuration.
// Copyright (C) 2017  David Anthony Stainton
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config provides session configuration utilities.
package config

import (
	"errors"

	"github.com/BurntSushi/toml"
	"github.com/sametime-go/stcore/constants"
	logging "gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("sametime/config")

// Config is the session configuration record: who to log in as, how, and
// which client identity to present.
type Config struct {
	// AuthUser is the community user id to authenticate as.
	AuthUser string

	// AuthCommunity is the community/domain the user belongs to.
	AuthCommunity string

	// AuthType selects PLAIN, TOKEN, RC2, or DH_RC2 login authentication.
	AuthType constants.AuthType

	// AuthPassword is the plaintext password (or token) used to build
	// the login message's auth data.
	AuthPassword string

	// ClientType is the client identifier presented during handshake.
	ClientType constants.ClientType

	// ClientHost is the hostname or address reported in a full login.
	ClientHost string

	// ClientVerMajor/ClientVerMinor are the handshake version numbers
	// this client announces.
	ClientVerMajor uint16
	ClientVerMinor uint16
}

// Validate reports whether c has the minimum fields needed to start a
// session.
func (c *Config) Validate() error {
	if c.AuthUser == "" {
		return errors.New("config: AuthUser must not be empty")
	}
	if c.ClientVerMajor == 0 {
		return errors.New("config: ClientVerMajor must be set")
	}
	return nil
}

// FromFile loads a Config from a TOML file.
func FromFile(fileName string) (*Config, error) {
	cfg := Config{}
	if _, err := toml.DecodeFile(fileName, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debugf("loaded session configuration for %s", cfg.AuthUser)
	return &cfg, nil
}

// FromBytes loads a Config from an in-memory TOML document.
func FromBytes(data []byte) (*Config, error) {
	cfg := Config{}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
