// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package secrets

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	cgerr "github.com/casegen/casegen/pkg/errors"
)

const scheme = "keyring://"

// IsRef reports whether value is a keyring:// reference.
func IsRef(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// Ref formats a keyring reference.
func Ref(service, key string) string {
	return scheme + service + "/" + key
}

// ParseRef splits keyring://service/key. The key may itself contain slashes.
func ParseRef(ref string) (service, key string, err error) {
	if !IsRef(ref) {
		return "", "", cgerr.Errorf(cgerr.CodeSecretInvalidInput, "not a keyring reference: %q", ref)
	}
	service, key, ok := strings.Cut(strings.TrimPrefix(ref, scheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", cgerr.Errorf(cgerr.CodeSecretInvalidInput, "invalid keyring reference %q: expected keyring://service/key", ref)
	}
	return service, key, nil
}

// Resolve returns the secret behind a keyring reference, or value itself
// when it is not one.
func Resolve(s Store, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	service, key, err := ParseRef(value)
	if err != nil {
		return "", err
	}
	secret, err := s.Get(service, key)
	if err != nil {
		return "", cgerr.Wrapf(err, cgerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViper replaces every keyring reference among v's string values.
// A reference that cannot be resolved is logged and left in place so the
// component that uses it reports the failure.
func ResolveViper(v *viper.Viper, s Store) {
	for _, k := range v.AllKeys() {
		val := v.GetString(k)
		if !IsRef(val) {
			continue
		}
		resolved, err := Resolve(s, val)
		if err != nil {
			slog.Warn("keeping unresolved keyring reference", "config_key", k, "error", err)
			continue
		}
		v.Set(k, resolved)
	}
}
