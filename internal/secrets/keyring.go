// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

// Package secrets stores API keys and export tokens in the OS keyring and
// resolves keyring://service/key references found in configuration.
package secrets

import (
	"errors"

	"github.com/zalando/go-keyring"

	cgerr "github.com/casegen/casegen/pkg/errors"
)

// DefaultService is the keyring service used by `casegen secret set`.
const DefaultService = "casegen"

// Store is a service/key addressed secret store.
type Store interface {
	Set(service, key, value string) error
	Get(service, key string) (string, error)
	Delete(service, key string) error
}

// Keyring implements Store with the OS keyring (Keychain, secret-service,
// Credential Manager).
type Keyring struct{}

var _ Store = Keyring{}

func NewKeyring() Keyring { return Keyring{} }

func (Keyring) Set(service, key, value string) error {
	if err := checkRef(service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return cgerr.Wrapf(err, cgerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return nil
}

func (Keyring) Get(service, key string) (string, error) {
	if err := checkRef(service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", cgerr.Errorf(cgerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return "", cgerr.Wrapf(err, cgerr.CodeSecretStoreFailure, "reading secret %s/%s", service, key)
	}
	return val, nil
}

func (Keyring) Delete(service, key string) error {
	if err := checkRef(service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return cgerr.Errorf(cgerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return cgerr.Wrapf(err, cgerr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}
	return nil
}

func checkRef(service, key string) error {
	if service == "" {
		return cgerr.New(cgerr.CodeSecretInvalidInput, "secret service must not be empty")
	}
	if key == "" {
		return cgerr.New(cgerr.CodeSecretInvalidInput, "secret key must not be empty")
	}
	return nil
}
