package config

import "github.com/zalando/go-keyring"

// keyringService namespaces every secret this process stores in the OS
// keyring (Secret Service on Linux, Keychain on macOS, Credential Manager
// on Windows).
const keyringService = "tinyagi"

// StoreSecret saves a secret (a channel bot token, an API key) to the OS
// keyring under name.
func StoreSecret(name, value string) error {
	return keyring.Set(keyringService, name, value)
}

// GetSecret reads a secret from the OS keyring, returning "" if it is not
// present or the keyring is unavailable.
func GetSecret(name string) string {
	val, err := keyring.Get(keyringService, name)
	if err != nil {
		return ""
	}
	return val
}

// DeleteSecret removes a secret from the OS keyring.
func DeleteSecret(name string) error {
	return keyring.Delete(keyringService, name)
}

// discordTokenKey names the settings.json field this process prefers to
// resolve from the OS keyring before falling back to the plaintext value,
// per spec.md §9's secret-handling note.
const discordTokenKey = "discord_token"

// ResolveSecrets overlays any keyring-held secrets onto cfg, so a token
// migrated out of settings.json with `StoreSecret` still reaches the
// Discord adapter. A blank keyring entry leaves the settings.json value
// untouched.
func ResolveSecrets(cfg *Config) {
	if v := GetSecret(discordTokenKey); v != "" {
		cfg.Channels.Discord.Token = v
	}
}
