// Package report renders reconciliation results for people and tools.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/castai/kimportgen/pkg/emit"
	"github.com/castai/kimportgen/pkg/reconcile"
)

var ErrUnknownFormat = errors.New("unknown report format")

type Format string

const (
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var Formats = []Format{FormatText, FormatYAML, FormatJSON}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	if !lo.Contains(Formats, f) {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownFormat)
	}
	return f, nil
}

// Document is the machine readable report.
type Document struct {
	Summary *reconcile.Report `json:"summary" yaml:"summary"`
	Output  *emit.Manifest    `json:"output,omitempty" yaml:"output,omitempty"`
}

var warningColor = color.New(color.FgYellow)

// Write renders the report. manifest is nil when nothing was emitted.
func Write(w io.Writer, format Format, rep *reconcile.Report, manifest *emit.Manifest) error {
	switch format {
	case FormatText:
		return writeText(w, rep, manifest)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(Document{Summary: rep, Output: manifest}); err != nil {
			return fmt.Errorf("encoding yaml report: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(Document{Summary: rep, Output: manifest}); err != nil {
			return fmt.Errorf("encoding json report: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%q: %w", format, ErrUnknownFormat)
}

func writeText(w io.Writer, rep *reconcile.Report, manifest *emit.Manifest) error {
	var sb strings.Builder

	for _, d := range rep.Diagnostics {
		line := fmt.Sprintf("WARNING: Definition of import ID %d is unknown!", d.ImportID)
		if d.Symbol != "" {
			line += fmt.Sprintf(" (def file name: %s)", d.Symbol)
		}
		sb.WriteString(warningColor.Sprint(line))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Found %d function declarations in header file\n", rep.Functions)
	fmt.Fprintf(&sb, "Found %d variable declarations in header file\n", rep.Variables)
	fmt.Fprintf(&sb, "Total = %d\n", rep.Total)
	fmt.Fprintf(&sb, "Unknown import IDs: [%s]\n", strings.Join(lo.Map(rep.UnknownImportIDs, func(id int, _ int) string {
		return fmt.Sprint(id)
	}), ", "))

	if manifest != nil {
		fmt.Fprintf(&sb, "Wrote %d files to %s\n", len(manifest.Files), manifest.Dir)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
