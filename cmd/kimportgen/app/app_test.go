package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/castai/kimportgen/config"
	"github.com/castai/kimportgen/pkg/decl"
	"github.com/castai/kimportgen/pkg/emit"
	"github.com/castai/kimportgen/pkg/reconcile"
	"github.com/castai/kimportgen/pkg/report"
)

func init() {
	color.NoColor = true
}

const testHeader = `
#pragma once

XBAPI NTSTATUS NTAPI NtClose
(
    IN HANDLE Handle
);

XBAPI void Foo(int x);

XBAPI ULONG CDECL DbgPrint
(
    PCH Format,
    ...
);

XBAPI DWORD XboxKrnlVersion;
`

const testDef = `LIBRARY xboxkrnl.exe
EXPORTS
    DbgPrint            @ 8 NONAME
    Foo@4               @ 4 NONAME
    XboxKrnlVersion     @ 7 NONAME
    NtClose@4           @ 187 NONAME
`

func newTestFs(t *testing.T, header, def string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/kdecl.h", []byte(header), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/xboxkrnl.exe.def", []byte(def), 0o644))
	return fs
}

func newTestConfig() config.Config {
	return config.Config{
		HeaderFile:  "/src/kdecl.h",
		DefFile:     "/src/xboxkrnl.exe.def",
		OutputDir:   "/src/kernel",
		ExportMacro: "XBAPI",
		MaxOrdinal:  65535,
		Emit: config.Emit{
			MacroPrefix: "KERNEL",
			StructName:  "KernelVariables",
			ClassName:   "Xbox",
		},
		Report: config.Report{Format: "text"},
		Log:    config.Log{Level: "DEBUG"},
	}
}

func TestRun(t *testing.T) {
	t.Run("generates sources and prints report", func(t *testing.T) {
		r := require.New(t)

		fs := newTestFs(t, testHeader, testDef)
		var stdout, stderr bytes.Buffer

		a := New(newTestConfig(), config.Version{Version: "test"}, fs, &stdout, &stderr)
		r.NoError(a.Run(context.Background()))

		for _, name := range []string{"imports.h", "vars.h", "common.h", "NtClose.cpp", "Foo.cpp", "DbgPrint.cpp"} {
			exists, err := afero.Exists(fs, filepath.Join("/src/kernel", name))
			r.NoError(err)
			r.True(exists, name)
		}

		foo, err := afero.ReadFile(fs, "/src/kernel/Foo.cpp")
		r.NoError(err)
		r.Contains(string(foo), " * Import Number:      4\n * Calling Convention: stdcall\n")
		r.Contains(string(foo), "\tK_EXIT();\n\treturn ERROR_NOT_IMPLEMENTED;\n}\n")
		r.NotContains(string(foo), "rval")

		dbg, err := afero.ReadFile(fs, "/src/kernel/DbgPrint.cpp")
		r.NoError(err)
		r.Contains(string(dbg), "\tK_ENTER_CDECL();\n\tK_INIT_ARG(PCH, Format);\n\tULONG rval;\n")

		vars, err := afero.ReadFile(fs, "/src/kernel/vars.h")
		r.NoError(err)
		r.Contains(string(vars), "\tDWORD XboxKrnlVersion;\n")

		imports, err := afero.ReadFile(fs, "/src/kernel/imports.h")
		r.NoError(err)
		r.Contains(string(imports), "\tKERNEL_IMPORT_DATA(7, XboxKrnlVersion) \\\n")
		r.Contains(string(imports), "\tKERNEL_IMPORT_NULL(5) \\\n")
		r.Contains(string(imports), "\tKERNEL_IMPORT_FUNC(187, NtClose) \\\n")

		out := stdout.String()
		r.Contains(out, "WARNING: Definition of import ID 0 is unknown!\n")
		r.Contains(out, "Found 3 function declarations in header file\n")
		r.Contains(out, "Found 1 variable declarations in header file\n")
		r.Contains(out, "Total = 4\n")
		r.Contains(out, "Wrote 6 files to /src/kernel\n")

		r.Contains(stderr.String(), "import slots have no declaration")
	})

	t.Run("json report to file", func(t *testing.T) {
		r := require.New(t)

		fs := newTestFs(t, testHeader, testDef)
		cfg := newTestConfig()
		cfg.Report = config.Report{Format: "json", File: "/src/report.json"}
		var stdout bytes.Buffer

		r.NoError(New(cfg, config.Version{}, fs, &stdout, &bytes.Buffer{}).Run(context.Background()))
		r.Empty(stdout.String())

		data, err := afero.ReadFile(fs, "/src/report.json")
		r.NoError(err)

		var doc report.Document
		r.NoError(jsoniter.Unmarshal(data, &doc))
		r.Equal(4, doc.Summary.Total)
		r.Len(doc.Summary.UnknownImportIDs, 184)
		r.Equal("/src/kernel", doc.Output.Dir)
		r.Len(doc.Output.Files, 6)
	})

	t.Run("writes metrics file", func(t *testing.T) {
		r := require.New(t)

		fs := newTestFs(t, testHeader, testDef)
		cfg := newTestConfig()
		cfg.MetricsFile = filepath.Join(t.TempDir(), "kimportgen.prom")

		r.NoError(New(cfg, config.Version{}, fs, &bytes.Buffer{}, &bytes.Buffer{}).Run(context.Background()))

		data, err := os.ReadFile(cfg.MetricsFile)
		r.NoError(err)
		r.Contains(string(data), "kimportgen_unknown_imports 184\n")
		r.Contains(string(data), `kimportgen_runs_total{command="generate",status="ok"}`)
	})

	t.Run("existing output directory still prints the report", func(t *testing.T) {
		r := require.New(t)

		fs := newTestFs(t, testHeader, testDef)
		r.NoError(fs.MkdirAll("/src/kernel", 0o755))
		var stdout bytes.Buffer

		err := New(newTestConfig(), config.Version{}, fs, &stdout, &bytes.Buffer{}).Run(context.Background())
		r.ErrorIs(err, emit.ErrOutputExists)

		out := stdout.String()
		r.Contains(out, "Total = 4\n")
		r.Contains(out, "Unknown import IDs: [0, 1, 2, 3, 5, 6, 9,")
		r.NotContains(out, "Wrote")
	})

	t.Run("report file close error", func(t *testing.T) {
		r := require.New(t)

		fs := closeFailingFs{Fs: newTestFs(t, testHeader, testDef)}
		cfg := newTestConfig()
		cfg.Report = config.Report{Format: "yaml", File: "/src/report.yaml"}

		err := New(cfg, config.Version{}, fs, &bytes.Buffer{}, &bytes.Buffer{}).Run(context.Background())
		r.ErrorContains(err, "closing report file: input/output error")

		data, err := afero.ReadFile(fs, "/src/report.yaml")
		r.NoError(err)
		r.Contains(string(data), "total: 4\n")
	})

	t.Run("unresolved declaration writes nothing", func(t *testing.T) {
		r := require.New(t)

		fs := newTestFs(t, testHeader+"XBAPI VOID NTAPI NtUnknown(void);\n", testDef)

		err := New(newTestConfig(), config.Version{}, fs, &bytes.Buffer{}, &bytes.Buffer{}).Run(context.Background())
		r.ErrorIs(err, reconcile.ErrUnresolved)
		r.ErrorContains(err, "NtUnknown")

		exists, err := afero.Exists(fs, "/src/kernel")
		r.NoError(err)
		r.False(exists)
	})

	t.Run("unnamed parameter", func(t *testing.T) {
		r := require.New(t)

		fs := newTestFs(t, "XBAPI NTSTATUS NTAPI NtClose(HANDLE);", testDef)

		err := New(newTestConfig(), config.Version{}, fs, &bytes.Buffer{}, &bytes.Buffer{}).Run(context.Background())
		r.ErrorIs(err, decl.ErrUnnamedArgument)
	})

	t.Run("missing def file", func(t *testing.T) {
		r := require.New(t)

		fs := afero.NewMemMapFs()
		r.NoError(afero.WriteFile(fs, "/src/kdecl.h", []byte(testHeader), 0o644))

		err := New(newTestConfig(), config.Version{}, fs, &bytes.Buffer{}, &bytes.Buffer{}).Run(context.Background())
		r.ErrorContains(err, "opening def file")
	})

	t.Run("canceled context", func(t *testing.T) {
		r := require.New(t)

		fs := newTestFs(t, testHeader, testDef)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := New(newTestConfig(), config.Version{}, fs, &bytes.Buffer{}, &bytes.Buffer{}).Run(ctx)
		r.ErrorIs(err, context.Canceled)
	})

	t.Run("custom defines", func(t *testing.T) {
		r := require.New(t)

		fs := newTestFs(t, testHeader+"XBAPI NTSYSAPI VOID STDAPI KeTickCount(void);\n", testDef+"    KeTickCount @ 156 NONAME\n")
		cfg := newTestConfig()
		cfg.Defines = "-DNTSYSAPI -DSTDAPI=fastcall"

		r.NoError(New(cfg, config.Version{}, fs, &bytes.Buffer{}, &bytes.Buffer{}).Run(context.Background()))

		stub, err := afero.ReadFile(fs, "/src/kernel/KeTickCount.cpp")
		r.NoError(err)
		r.Contains(string(stub), "K_ENTER_FASTCALL();")
	})

	t.Run("invalid config panics", func(t *testing.T) {
		r := require.New(t)

		cfg := newTestConfig()
		cfg.Report.Format = "xml"
		r.Panics(func() {
			New(cfg, config.Version{}, afero.NewMemMapFs(), &bytes.Buffer{}, &bytes.Buffer{})
		})
	})
}

func TestTable(t *testing.T) {
	t.Run("lists declarations", func(t *testing.T) {
		r := require.New(t)

		fs := newTestFs(t, testHeader, testDef)
		var stdout bytes.Buffer

		r.NoError(New(newTestConfig(), config.Version{}, fs, &stdout, &bytes.Buffer{}).Table(context.Background(), false))

		out := stdout.String()
		r.Contains(out, "NTSTATUS NtClose(HANDLE Handle)")
		r.Contains(out, "ULONG DbgPrint(PCH Format, ...)")
		r.Contains(out, "XboxKrnlVersion")

		exists, err := afero.Exists(fs, "/src/kernel")
		r.NoError(err)
		r.False(exists)
	})

	t.Run("writes metrics file", func(t *testing.T) {
		r := require.New(t)

		fs := newTestFs(t, testHeader, testDef)
		cfg := newTestConfig()
		cfg.MetricsFile = filepath.Join(t.TempDir(), "kimportgen.prom")

		r.NoError(New(cfg, config.Version{}, fs, &bytes.Buffer{}, &bytes.Buffer{}).Table(context.Background(), true))

		data, err := os.ReadFile(cfg.MetricsFile)
		r.NoError(err)
		r.Contains(string(data), `kimportgen_runs_total{command="table",status="ok"}`)
	})
}

type closeFailingFs struct {
	afero.Fs
}

func (f closeFailingFs) Create(name string) (afero.File, error) {
	file, err := f.Fs.Create(name)
	if err != nil {
		return nil, err
	}
	return closeFailingFile{File: file}, nil
}

type closeFailingFile struct {
	afero.File
}

func (f closeFailingFile) Close() error {
	_ = f.File.Close()
	return errors.New("input/output error")
}
