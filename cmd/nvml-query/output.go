/*
Copyright 2025 The HAMi Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
	formatJSON  = "json"
)

// defaultFormat is a table for people and YAML for pipes.
func defaultFormat() string {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return formatTable
	}
	return formatYAML
}

func validateFormat(format string) error {
	switch format {
	case formatTable, formatYAML, formatJSON:
		return nil
	}
	return fmt.Errorf("unknown output format %q, expected one of table, yaml, json", format)
}

func setBorderlessTable(table *tablewriter.Table) {
	table.SetBorder(false)
	table.SetAutoFormatHeaders(true)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
}

type printer struct {
	out    io.Writer
	format string
}

// print writes v as JSON or YAML, or writes header and rows as a table.
func (p printer) print(v any, header []string, rows [][]string) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatTable:
		table := tablewriter.NewWriter(p.out)
		setBorderlessTable(table)
		table.SetHeader(header)
		table.AppendBulk(rows)
		table.Render()
		return nil
	}
	return validateFormat(p.format)
}

func orDash[T uint32 | uint64](v *T, unit string) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*v), 10) + unit
}

func boolOrDash(v *bool) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatBool(*v)
}

func stringOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
