// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
)

const testKey = "0123456789abcdef"

func TestRoundTrip(t *testing.T) {
	c, err := NewAESCipher(testKey)
	require.NoError(t, err)

	for _, plain := range []string{"", "secret", "exactly16bytes!!", "päss wörd with unicode"} {
		enc, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, enc)

		got, err := c.Decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestDecryptKnownCiphertext(t *testing.T) {
	// built independently with the key as IV, as the Java side does
	key := []byte(testKey)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	data := append([]byte("hunter2"), 9, 9, 9, 9, 9, 9, 9, 9, 9)
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, key).CryptBlocks(out, data)

	c, err := NewAESCipher(testKey)
	require.NoError(t, err)
	got, err := c.Decrypt(base64.StdEncoding.EncodeToString(out))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestNewAESCipherKeyErrors(t *testing.T) {
	_, err := NewAESCipher("")
	assert.ErrorIs(t, err, jobserr.SecretKeyNotSet)

	_, err = NewAESCipher("short")
	assert.ErrorContains(t, err, "16 bytes")
}

func TestDecryptErrors(t *testing.T) {
	c, err := NewAESCipher(testKey)
	require.NoError(t, err)

	_, err = c.Decrypt("%%% not base64")
	assert.ErrorContains(t, err, "base64")

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorContains(t, err, "length")

	other, err := NewAESCipher("fedcba9876543210")
	require.NoError(t, err)
	enc, err := other.Encrypt("secret")
	require.NoError(t, err)
	if got, err := c.Decrypt(enc); err == nil {
		assert.NotEqual(t, "secret", got)
	}
}
