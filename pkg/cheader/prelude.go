package cheader

import (
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero/mem"
	"modernc.org/cc/v4"
)

const (
	preludeName = "<prelude>"
	headerName  = "<header>"

	// cc.Parse refuses a translation unit that does not declare it.
	predefined = "int __predefined_declarator;\n"
)

func newConfig() *cc.Config {
	return &cc.Config{
		FS:              emptyIncludes{},
		IncludePaths:    []string{""},
		SysIncludePaths: []string{""},
	}
}

// emptyIncludes resolves every #include to an empty file.
type emptyIncludes struct{}

func (emptyIncludes) Open(name string) (fs.File, error) {
	return mem.NewReadOnlyFileHandle(mem.CreateFile(name)), nil
}

// prelude defines the configured macros and declares typeNames as int typedefs. The
// export macro becomes a dllimport declspec and each calling-convention macro an
// annotate attribute carrying its tag.
func (o Options) prelude(typeNames []string) string {
	var sb strings.Builder

	sb.WriteString(predefined)
	if o.ExportMacro != "" {
		fmt.Fprintf(&sb, "#define %s __declspec(dllimport)\n", o.ExportMacro)
	}
	for _, name := range sortedKeys(o.CallingConventions) {
		fmt.Fprintf(&sb, "#define %s __attribute__((annotate(%q)))\n", name, o.CallingConventions[name])
	}
	for _, name := range sortedKeys(o.Ignored) {
		fmt.Fprintf(&sb, "#define %s\n", name)
	}
	for _, name := range typeNames {
		fmt.Fprintf(&sb, "typedef int %s;\n", name)
	}

	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
