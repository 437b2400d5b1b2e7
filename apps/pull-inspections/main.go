// Copyright 2025 CivicData

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/civicdata/inspections/dates"
	"github.com/civicdata/inspections/inspections"
	"github.com/civicdata/inspections/socrata"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"

	toml "github.com/pelletier/go-toml/v2"
)

type Flags struct {
	CacheDir string // default: ~/.civicdata/inspections
	LogLevel logging.Level
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("pull-inspections", flag.ExitOnError)
	fs.StringVar(&flags.CacheDir, "cache",
		filepath.Join(os.Getenv("HOME"), ".civicdata", "inspections"),
		"path to the config file and downloaded data")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")

	err := fs.Parse(args)
	return &flags, err
}

type Config struct {
	BaseURL    string   `toml:"base_url"` // default: the NYC open-data portal
	Dataset    string   `toml:"dataset"`
	DateColumn string   `toml:"date_column"`
	Order      string   `toml:"order"`
	LagDays    int      `toml:"lag_days"`  // window ends this many days before today
	SpanDays   int      `toml:"span_days"` // window length in days
	PageSize   int      `toml:"page_size"`
	Columns    []string `toml:"columns"`
	TokenEnv   string   `toml:"token_env"` // env. variable holding the app token
	FilePrefix string   `toml:"file_prefix"`
}

const sampleConfig = `dataset = "43nn-pn8j"
date_column = "inspection_date"
order = "inspection_date DESC, camis"
lag_days = 30
span_days = 90
page_size = 1000
token_env = "SOCRATA_APP_TOKEN"
file_prefix = "nyc_restaurant_inspections"
`

func parseConfig(dir string) (*Config, error) {
	filePath := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = errors.Annotate(err,
				"config file '%s' does not exist.\nPlease create config file containing:\n%s",
				filePath, sampleConfig)
			return nil, err
		} else {
			return nil, errors.Annotate(err,
				"cannot check config file for existence: '%s'", filePath)
		}
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open config file %s", filePath)
	}
	defer f.Close()

	d := toml.NewDecoder(f)
	var c Config
	if err := d.Decode(&c); err != nil {
		return nil, errors.Annotate(err, "failed to read config file %s", filePath)
	}
	if c.LagDays < 0 || c.SpanDays < 0 {
		return nil, errors.Reason(
			"lag_days [%d] and span_days [%d] must be non-negative",
			c.LagDays, c.SpanDays)
	}
	return &c, nil
}

// dataset merges the file config over the dataset defaults.
func (c *Config) dataset() inspections.Config {
	d := inspections.DefaultConfig()
	if c.Dataset != "" {
		d.Dataset = c.Dataset
	}
	if c.DateColumn != "" {
		d.DateColumn = c.DateColumn
	}
	if c.Order != "" {
		d.Order = c.Order
	}
	if c.PageSize != 0 {
		d.PageSize = c.PageSize
	}
	if len(c.Columns) != 0 {
		d.Columns = c.Columns
	}
	if c.FilePrefix != "" {
		d.FilePrefix = c.FilePrefix
	}
	return d
}

func pull(ctx context.Context, flags *Flags) error {
	config, err := parseConfig(flags.CacheDir)
	if err != nil {
		return errors.Annotate(err, "failed to parse config")
	}
	tokenEnv := config.TokenEnv
	if tokenEnv == "" {
		tokenEnv = "SOCRATA_APP_TOKEN"
	}
	token := os.Getenv(tokenEnv)
	if token == "" {
		return errors.Reason(
			"app token env. variable %s is not set; "+
				"request a token at https://dev.socrata.com/", tokenEnv)
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = socrata.URL
	}
	ctx = socrata.UseClientAt(ctx, baseURL, token)
	window := dates.NewWindow(time.Now(), config.LagDays, config.SpanDays)
	if err := inspections.Pull(ctx, config.dataset(), window, flags.CacheDir); err != nil {
		return errors.Annotate(err, "failed to pull data")
	}
	return nil
}

func main() {
	ctx := context.Background()
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		os.Exit(1)
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))

	if err := pull(ctx, flags); err != nil {
		logging.Errorf(ctx, err.Error())
		os.Exit(1)
	}
}
