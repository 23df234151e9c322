package task

import (
	"strconv"
	"strings"

	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

var memoryUnits = map[string]int64{
	"B":   1,
	"KB":  1000,
	"MB":  1000 * 1000,
	"GB":  1000 * 1000 * 1000,
	"TB":  1000 * 1000 * 1000 * 1000,
	"KiB": 1 << 10,
	"MiB": 1 << 20,
	"GiB": 1 << 30,
	"TiB": 1 << 40,
}

// ParseMemoryQuantity converts a runtime.memory value (bare byte count, or a
// "<number> <unit>" string per the WDL memory-quantity grammar) into bytes.
func ParseMemoryQuantity(v values.Value) (int64, error) {
	switch v.Type.Kind {
	case types.Int:
		return v.Int, nil
	case types.Float:
		return int64(v.Float), nil
	case types.String:
		return parseMemoryString(v.Str)
	}
	return 0, errs.New(errs.KindEval, errs.Pos{}, "runtime.memory: unsupported value of type %s", v.Type)
}

func parseMemoryString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (s[i] == '.' || s[i] == '-' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	numPart := strings.TrimSpace(s[:i])
	unitPart := strings.TrimSpace(s[i:])
	if numPart == "" {
		return 0, errs.New(errs.KindEval, errs.Pos{}, "runtime.memory: cannot parse quantity %q", s)
	}
	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, errs.Wrap(errs.KindEval, err, "runtime.memory: cannot parse quantity %q", s)
	}
	if unitPart == "" {
		return int64(n), nil
	}
	mult, ok := memoryUnits[unitPart]
	if !ok {
		return 0, errs.New(errs.KindEval, errs.Pos{}, "runtime.memory: unknown unit %q in %q", unitPart, s)
	}
	return int64(n * float64(mult)), nil
}
