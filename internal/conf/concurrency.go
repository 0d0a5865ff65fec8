package conf

import (
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/kestrelmedia/narrationforge/internal/model"
)

// scopeBudget is the per-task RAM budget and headroom fraction used to turn
// available memory into a worker count. Grounded on
// generate_concurrency_config.py's per-scope per_task_ram/headroom_ram/
// base_default table; the per_task_vram/headroom_vram columns are dropped
// here since no GPU/VRAM probing library exists in the retrieval pack (see
// DESIGN.md Open Questions) — the RAM/core path is what remains.
type scopeBudget struct {
	perTaskRAMBytes uint64
	headroomRAM     float64
	baseDefault     int
}

var scopeBudgets = map[model.Scope]scopeBudget{
	model.ScopeGenerateVideo:  {perTaskRAMBytes: 1 * 1024 * 1024 * 1024, headroomRAM: 0.5, baseDefault: 2},
	model.ScopeGenerateDraft:  {perTaskRAMBytes: 512 * 1024 * 1024, headroomRAM: 0.5, baseDefault: 4},
	model.ScopeTTS:            {perTaskRAMBytes: 256 * 1024 * 1024, headroomRAM: 0.5, baseDefault: 4},
	model.ScopeGenerateScript: {perTaskRAMBytes: 128 * 1024 * 1024, headroomRAM: 0.5, baseDefault: 2},
}

// RecommendConcurrency computes a recommended worker count for scope from
// available RAM and CPU core count, mirroring
// generate_concurrency_config.py's recommend_concurrency RAM/core branch.
// On any measurement failure it falls back to the scope's base default,
// exactly as the Python original catches all exceptions and returns a
// hardcoded fallback.
func RecommendConcurrency(scope model.Scope) int {
	budget, ok := scopeBudgets[scope]
	if !ok {
		return 1
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return budget.baseDefault
	}

	byRAM := maxInt(1, int(math.Floor(float64(vm.Available)*budget.headroomRAM/float64(budget.perTaskRAMBytes))))
	byCore := maxInt(1, runtime.NumCPU()/2)

	return maxInt(1, minInt(byRAM, byCore, budget.baseDefault))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// EffectiveConcurrency resolves scope's worker count through the
// override -> env -> recommended chain described in spec.md §5, mirroring
// generate_concurrency_config.py's get_effective.
func (s *Settings) EffectiveConcurrency(scope model.Scope) (int, Source) {
	if cfg, ok := s.Concurrency.scopeConcurrency(scope); ok && cfg.Override && cfg.MaxWorkers >= 1 {
		return cfg.MaxWorkers, SourceUser
	}

	if envName := EnvVarFor(scope); envName != "" {
		if raw := strings.TrimSpace(os.Getenv(envName)); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v >= 1 {
				return v, SourceEnv
			}
		}
	}

	return RecommendConcurrency(scope), SourceRecommended
}
