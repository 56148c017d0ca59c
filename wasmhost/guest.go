package wasmhost

import (
	"context"
	"strconv"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/resource"
)

// Load compiles and instantiates a guest module in rt. The host module must
// already be instantiated.
func Load(ctx context.Context, rt wazero.Runtime, name string, wasm []byte) (api.Module, error) {
	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGuest, errors.KindInvalidInput, err, "compile guest module")
	}
	imports := 0
	for _, f := range compiled.ImportedFunctions() {
		if module, _, _ := f.Import(); module == ModuleName {
			imports++
		}
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGuest, errors.KindRegistration, err, "instantiate guest module")
	}
	Logger().Debug("guest loaded",
		zap.String("name", name),
		zap.Int("webbind_imports", imports))
	return mod, nil
}

func handleString(h resource.Handle) string {
	return strconv.FormatUint(uint64(h), 10)
}
