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

package banner

import (
	"embed"
	"io"
	"os"
	"strconv"
	"text/template"

	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

//go:embed banner.txt
var EmbedLogo embed.FS

type Config struct {
	Out    io.Writer
	Logger logger.Logger
}

// Runner prints the start banner.
type Runner struct {
	out    io.Writer
	logger logger.Logger
}

// Vars fill the banner template. MetricsPort 0 hides the metrics address.
type Vars struct {
	Name        string
	Scheduler   string
	Jobs        int
	MetricsPort int
	Pid         string
}

func New(cfg *Config) *Runner {

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	return &Runner{
		out:    out,
		logger: cfg.Logger.WithName("banner"),
	}
}

func (r *Runner) PrintBanner(vars Vars) error {

	data, err := EmbedLogo.ReadFile("banner.txt")
	if err != nil {
		r.logger.Error(jobserr.BannerPrintReaderError, "output banner read error", "error", err)
		return err
	}

	tmpl, err := template.New("banner").Parse(string(data))
	if err != nil {
		r.logger.Error(jobserr.BannerPrintExecuteError, "template parse error", "error", err)
		return err
	}

	if vars.Pid == "" {
		vars.Pid = strconv.Itoa(os.Getpid())
	}

	if err := tmpl.Execute(r.out, vars); err != nil {
		r.logger.Error(jobserr.BannerPrintExecuteError, "template execute error", "error", err)
		return err
	}

	return nil
}
