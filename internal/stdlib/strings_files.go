package stdlib

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

func registerStringsAndFiles(r *Registry) {
	r.register("basename", ast.FuncSig{
		Params:   []*types.Type{prim(types.String)},
		Variadic: true,
		Ret:      prim(types.String),
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		base := filepath.Base(stringOf(args[0]))
		if len(args) > 1 {
			base = strings.TrimSuffix(base, stringOf(args[1]))
		}
		return values.NewString(base), nil
	})

	r.register("sub", ast.FuncSig{
		Params: []*types.Type{prim(types.String), prim(types.String), prim(types.String)},
		Ret:    prim(types.String),
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		return values.NewString(strings.ReplaceAll(stringOf(args[0]), stringOf(args[1]), stringOf(args[2]))), nil
	})

	r.register("prefix", ast.FuncSig{
		Params: []*types.Type{prim(types.String), arr(types.AnyT())},
		Infer: func(args []*types.Type) (*types.Type, error) {
			return arr(prim(types.String)), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		p := stringOf(args[0])
		out := make([]values.Value, len(args[1].Arr))
		for i, e := range args[1].Arr {
			out[i] = values.NewString(p + renderScalar(e))
		}
		return values.NewArray(prim(types.String), false, out), nil
	})

	r.register("suffix", ast.FuncSig{
		Params: []*types.Type{prim(types.String), arr(types.AnyT())},
		Infer: func(args []*types.Type) (*types.Type, error) {
			return arr(prim(types.String)), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		s := stringOf(args[0])
		out := make([]values.Value, len(args[1].Arr))
		for i, e := range args[1].Arr {
			out[i] = values.NewString(renderScalar(e) + s)
		}
		return values.NewArray(prim(types.String), false, out), nil
	})

	r.register("quote", ast.FuncSig{
		Params: []*types.Type{arr(types.AnyT())},
		Infer:  func(args []*types.Type) (*types.Type, error) { return arr(prim(types.String)), nil },
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		out := make([]values.Value, len(args[0].Arr))
		for i, e := range args[0].Arr {
			out[i] = values.NewString(`"` + renderScalar(e) + `"`)
		}
		return values.NewArray(prim(types.String), false, out), nil
	})

	r.register("sep", ast.FuncSig{
		Params: []*types.Type{prim(types.String), arr(types.AnyT())},
		Ret:    prim(types.String),
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		sepStr := stringOf(args[0])
		parts := make([]string, len(args[1].Arr))
		for i, e := range args[1].Arr {
			parts[i] = renderScalar(e)
		}
		return values.NewString(strings.Join(parts, sepStr)), nil
	})

	r.register("size", ast.FuncSig{
		Params:   []*types.Type{types.AnyT()},
		Variadic: true,
		Ret:      prim(types.Float),
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		total, err := sizeOf(args[0], pm)
		if err != nil {
			return values.Value{}, err
		}
		if len(args) > 1 {
			total /= unitDivisor(stringOf(args[1]))
		}
		return values.NewFloat(total), nil
	})

	r.register("stdout", ast.FuncSig{Ret: prim(types.File)}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		p, err := pm.StdoutPath()
		if err != nil {
			return values.Value{}, err
		}
		return values.NewFile(p), nil
	})
	r.register("stderr", ast.FuncSig{Ret: prim(types.File)}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		p, err := pm.StderrPath()
		if err != nil {
			return values.Value{}, err
		}
		return values.NewFile(p), nil
	})

	r.register("read_string", ast.FuncSig{Params: []*types.Type{prim(types.File)}, Ret: prim(types.String)},
		readFileAs(func(s string) values.Value { return values.NewString(strings.TrimRight(s, "\n")) }))
	r.register("read_int", ast.FuncSig{Params: []*types.Type{prim(types.File)}, Ret: prim(types.Int)},
		func(args []values.Value, pm PathMapper) (values.Value, error) {
			s, err := readWholeFile(args[0], pm)
			if err != nil {
				return values.Value{}, err
			}
			var n int64
			if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err != nil {
				return values.Value{}, fmt.Errorf("read_int: not an integer: %q", s)
			}
			return values.NewInt(n), nil
		})
	r.register("read_float", ast.FuncSig{Params: []*types.Type{prim(types.File)}, Ret: prim(types.Float)},
		func(args []values.Value, pm PathMapper) (values.Value, error) {
			s, err := readWholeFile(args[0], pm)
			if err != nil {
				return values.Value{}, err
			}
			var f float64
			if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &f); err != nil {
				return values.Value{}, fmt.Errorf("read_float: not a float: %q", s)
			}
			return values.NewFloat(f), nil
		})
	r.register("read_boolean", ast.FuncSig{Params: []*types.Type{prim(types.File)}, Ret: prim(types.Boolean)},
		func(args []values.Value, pm PathMapper) (values.Value, error) {
			s, err := readWholeFile(args[0], pm)
			if err != nil {
				return values.Value{}, err
			}
			return values.NewBool(strings.EqualFold(strings.TrimSpace(s), "true")), nil
		})

	r.register("read_lines", ast.FuncSig{Params: []*types.Type{prim(types.File)}, Ret: arr(prim(types.String))},
		func(args []values.Value, pm PathMapper) (values.Value, error) {
			s, err := readWholeFile(args[0], pm)
			if err != nil {
				return values.Value{}, err
			}
			lines := splitLinesTrimEmpty(s)
			out := make([]values.Value, len(lines))
			for i, l := range lines {
				out[i] = values.NewString(l)
			}
			return values.NewArray(prim(types.String), false, out), nil
		})

	r.register("write_lines", ast.FuncSig{Params: []*types.Type{arr(prim(types.String))}, Ret: prim(types.File)},
		func(args []values.Value, pm PathMapper) (values.Value, error) {
			var sb strings.Builder
			for _, e := range args[0].Arr {
				sb.WriteString(e.Str)
				sb.WriteByte('\n')
			}
			return writeOutputFile(pm, "lines", sb.String())
		})

	r.register("read_json", ast.FuncSig{Params: []*types.Type{prim(types.File)}, Ret: types.AnyT()},
		func(args []values.Value, pm PathMapper) (values.Value, error) {
			s, err := readWholeFile(args[0], pm)
			if err != nil {
				return values.Value{}, err
			}
			return values.ParseJSON(json.RawMessage(s))
		})

	r.register("write_json", ast.FuncSig{Params: []*types.Type{types.AnyT()}, Ret: prim(types.File)},
		func(args []values.Value, pm PathMapper) (values.Value, error) {
			jv, err := values.ToJSON(args[0])
			if err != nil {
				return values.Value{}, err
			}
			b, err := json.Marshal(jv)
			if err != nil {
				return values.Value{}, err
			}
			return writeOutputFile(pm, "json", string(b))
		})

	r.register("read_map", ast.FuncSig{Params: []*types.Type{prim(types.File)}, Ret: mapT(prim(types.String), prim(types.String))},
		func(args []values.Value, pm PathMapper) (values.Value, error) {
			s, err := readWholeFile(args[0], pm)
			if err != nil {
				return values.Value{}, err
			}
			m := values.NewOrderedMap()
			for _, line := range splitLinesTrimEmpty(s) {
				cols := strings.SplitN(line, "\t", 2)
				if len(cols) != 2 {
					return values.Value{}, fmt.Errorf("read_map: malformed line %q", line)
				}
				m.Put(values.NewString(cols[0]), values.NewString(cols[1]))
			}
			return values.NewMap(prim(types.String), prim(types.String), m), nil
		})

	r.register("read_object", ast.FuncSig{Params: []*types.Type{prim(types.File)}, Ret: prim(types.Object)},
		func(args []values.Value, pm PathMapper) (values.Value, error) {
			s, err := readWholeFile(args[0], pm)
			if err != nil {
				return values.Value{}, err
			}
			lines := splitLinesTrimEmpty(s)
			if len(lines) != 2 {
				return values.Value{}, fmt.Errorf("read_object: expected exactly 2 lines (header, values)")
			}
			keys := strings.Split(lines[0], "\t")
			vals := strings.Split(lines[1], "\t")
			if len(keys) != len(vals) {
				return values.Value{}, fmt.Errorf("read_object: header/value column count mismatch")
			}
			fields := make([]values.Field, len(keys))
			for i := range keys {
				fields[i] = values.Field{Name: keys[i], Value: values.NewString(vals[i])}
			}
			return values.Value{Type: prim(types.Object), Fields: fields}, nil
		})

	r.register("glob", ast.FuncSig{Params: []*types.Type{prim(types.String)}, Ret: arr(prim(types.File))},
		func(args []values.Value, pm PathMapper) (values.Value, error) {
			dir, err := pm.HostPath(values.FileHandle{Virtual: "."})
			if err != nil {
				return values.Value{}, err
			}
			matches, err := filepath.Glob(filepath.Join(dir, stringOf(args[0])))
			if err != nil {
				return values.Value{}, err
			}
			out := make([]values.Value, len(matches))
			for i, m := range matches {
				out[i] = values.NewFile(m)
			}
			return values.NewArray(prim(types.File), false, out), nil
		})
}

func stringOf(v values.Value) string { return renderScalar(v) }

func renderScalar(v values.Value) string {
	switch v.Type.Kind {
	case types.String:
		return v.Str
	case types.File, types.Directory:
		return v.File.Virtual
	case types.Int:
		return fmt.Sprintf("%d", v.Int)
	case types.Float:
		return fmt.Sprintf("%g", v.Float)
	case types.Boolean:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return values.Render(v)
	}
}

func readFileAs(f func(string) values.Value) Func {
	return func(args []values.Value, pm PathMapper) (values.Value, error) {
		s, err := readWholeFile(args[0], pm)
		if err != nil {
			return values.Value{}, err
		}
		return f(s), nil
	}
}

func readWholeFile(v values.Value, pm PathMapper) (string, error) {
	p, err := pm.HostPath(v.File)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeOutputFile(pm PathMapper, name, content string) (values.Value, error) {
	handle, path, err := pm.NewOutputFile(name)
	if err != nil {
		return values.Value{}, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return values.Value{}, err
	}
	return values.Value{Type: prim(types.File), File: handle}, nil
}

func splitLinesTrimEmpty(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func unitDivisor(unit string) float64 {
	switch strings.ToUpper(unit) {
	case "B", "BYTES":
		return 1
	case "KB":
		return 1000
	case "K", "KIB":
		return 1024
	case "MB":
		return 1000 * 1000
	case "M", "MIB":
		return 1024 * 1024
	case "GB":
		return 1000 * 1000 * 1000
	case "G", "GIB":
		return 1024 * 1024 * 1024
	case "TB":
		return 1e12
	case "T", "TIB":
		return 1024 * 1024 * 1024 * 1024
	default:
		return 1
	}
}

func sizeOf(v values.Value, pm PathMapper) (float64, error) {
	if v.Absent {
		return 0, nil
	}
	switch v.Type.Kind {
	case types.File:
		p, err := pm.HostPath(v.File)
		if err != nil {
			return 0, err
		}
		fi, err := os.Stat(p)
		if err != nil {
			return 0, err
		}
		return float64(fi.Size()), nil
	case types.Directory:
		p, err := pm.HostPath(v.File)
		if err != nil {
			return 0, err
		}
		var total int64
		err = filepath.Walk(p, func(_ string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				total += fi.Size()
			}
			return nil
		})
		return float64(total), err
	case types.Array:
		var total float64
		for _, e := range v.Arr {
			s, err := sizeOf(e, pm)
			if err != nil {
				return 0, err
			}
			total += s
		}
		return total, nil
	default:
		return 0, nil
	}
}
