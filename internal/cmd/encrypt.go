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

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dashing-contrib/dashing-jobs/internal/util/crypto"
)

// EncryptCommand prints ENC(...) values for option secrets.
func EncryptCommand() *cobra.Command {

	var key string
	cmd := &cobra.Command{
		Use:   "encrypt VALUE",
		Short: "Encrypt a job option value with the configured secret key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv("DASHING_JOBS_SECRET_KEY")
			}
			cipher, err := crypto.NewAESCipher(key)
			if err != nil {
				return err
			}
			encrypted, err := cipher.Encrypt(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ENC(%s)\n", encrypted)
			return err
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "16 byte secret key, defaults to $DASHING_JOBS_SECRET_KEY")
	return cmd
}
