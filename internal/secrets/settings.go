package secrets

import (
	"fmt"

	"github.com/spf13/viper"
)

// HasEncrypted reports whether any string setting in v is ENC[...] wrapped.
func HasEncrypted(v *viper.Viper) bool {
	for _, key := range v.AllKeys() {
		if IsEncrypted(v.GetString(key)) {
			return true
		}
	}
	return false
}

// DecryptSettings replaces every ENC[...] setting in v with its plaintext and
// returns the keys it decrypted. Non-string settings never match the wrapper.
func DecryptSettings(v *viper.Viper, k *Keyring) ([]string, error) {
	var keys []string
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsEncrypted(val) {
			continue
		}
		plaintext, err := k.Decrypt(val)
		if err != nil {
			return keys, fmt.Errorf("decrypt %q: %w", key, err)
		}
		v.Set(key, plaintext)
		keys = append(keys, key)
	}
	return keys, nil
}
