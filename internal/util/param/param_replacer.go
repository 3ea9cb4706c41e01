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

// Package param expands placeholders in job options before they are
// handed to a job: ${NAME} takes an environment variable and ENC(...)
// decrypts a secret.
package param

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/dashing-contrib/dashing-jobs/internal/util/crypto"
)

var (
	envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)
	encPattern = regexp.MustCompile(`^ENC\(([A-Za-z0-9+/=]+)\)$`)
)

// Replacer resolves placeholders. The zero value resolves environment
// variables only and rejects ENC(...) values.
type Replacer struct {
	cipher *crypto.AESCipher
	lookup func(string) (string, bool)
}

// NewReplacer uses secretKey for ENC(...) values; an empty key disables
// decryption.
func NewReplacer(secretKey string) (*Replacer, error) {
	r := &Replacer{lookup: os.LookupEnv}
	if secretKey == "" {
		return r, nil
	}
	c, err := crypto.NewAESCipher(secretKey)
	if err != nil {
		return nil, err
	}
	r.cipher = c
	return r, nil
}

// Resolve returns a copy of options with every string value expanded,
// nested maps and lists included.
func (r *Replacer) Resolve(options map[string]any) (map[string]any, error) {
	out, err := r.value(options, "")
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return out.(map[string]any), nil
}

func (r *Replacer) value(v any, path string) (any, error) {
	switch typed := v.(type) {
	case string:
		s, err := r.String(typed)
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", strings.TrimPrefix(path, "."), err)
		}
		return s, nil
	case map[string]any:
		if typed == nil {
			return nil, nil
		}
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			resolved, err := r.value(item, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			resolved, err := r.value(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// String expands one value. Unset variables without a ":-default" are an
// error.
func (r *Replacer) String(s string) (string, error) {
	if m := encPattern.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		if r.cipher == nil {
			return "", fmt.Errorf("encrypted value found but secret_key is not set")
		}
		return r.cipher.Decrypt(m[1])
	}

	lookup := r.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var missing []string
	out := envPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		if v, ok := lookup(sub[1]); ok {
			return v
		}
		if strings.Contains(match, ":-") {
			return sub[2]
		}
		missing = append(missing, sub[1])
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable %s is not set", strings.Join(missing, ", "))
	}
	return out, nil
}
